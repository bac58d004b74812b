package memory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingHTTPClient always errors, simulating an unreachable API.
type failingHTTPClient struct{}

func (failingHTTPClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/alex/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		json.NewEncoder(w).Encode(entriesResponse{Entries: []Entry{
			{ID: "m1", Content: "matched: " + req.Query, Score: 0.9},
		}})
	})
	mux.HandleFunc("/api/v1/alex/list", func(w http.ResponseWriter, r *http.Request) {
		limit := r.URL.Query().Get("limit")
		entries := []Entry{{ID: "m1", Content: "first"}}
		if limit != "1" {
			entries = append(entries, Entry{ID: "m2", Content: "second"})
		}
		json.NewEncoder(w).Encode(entriesResponse{Entries: entries})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, NewClient(server.URL, nil, zerolog.Nop())
}

func TestClient_Search(t *testing.T) {
	_, client := newTestServer(t)

	entries := client.Search(context.Background(), "deploy notes", 10)
	require.Len(t, entries, 1)
	assert.Equal(t, "matched: deploy notes", entries[0].Content)
	assert.Equal(t, 0.9, entries[0].Score)
}

func TestClient_List(t *testing.T) {
	_, client := newTestServer(t)

	entries := client.List(context.Background(), 0)
	assert.Len(t, entries, 2)

	entries = client.List(context.Background(), 1)
	assert.Len(t, entries, 1)
}

func TestClient_SearchSoftFails(t *testing.T) {
	client := NewClient("http://localhost:1", nil, zerolog.Nop())
	client.SetHTTPClient(failingHTTPClient{})

	entries := client.Search(context.Background(), "anything", 5)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClient_ListSoftFails(t *testing.T) {
	client := NewClient("http://localhost:1", nil, zerolog.Nop())
	client.SetHTTPClient(failingHTTPClient{})

	entries := client.List(context.Background(), 5)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClient_SoftFailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())
	assert.Empty(t, client.Search(context.Background(), "q", 5))
	assert.Empty(t, client.List(context.Background(), 5))
}

func TestClient_SoftFailsOnMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())
	assert.Empty(t, client.Search(context.Background(), "q", 5))
}

func TestClient_Ping(t *testing.T) {
	_, client := newTestServer(t)
	assert.NoError(t, client.Ping(context.Background()))

	down := NewClient("http://localhost:1", nil, zerolog.Nop())
	down.SetHTTPClient(failingHTTPClient{})
	assert.Error(t, down.Ping(context.Background()))
}

func TestClient_EmptyEntriesNeverNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())
	entries := client.List(context.Background(), 5)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
