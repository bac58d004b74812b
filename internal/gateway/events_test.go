package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain string", `"hello"`, "hello"},
		{"block array", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "a\nb"},
		{"object with message", `{"message":"x"}`, "x"},
		{"null", `null`, ""},
		{"absent", ``, ""},
		{"object with text", `{"text":"t"}`, "t"},
		{"object with content", `{"content":"c"}`, "c"},
		{"nested content blocks", `{"content":[{"type":"text","text":"inner"}]}`, "inner"},
		{"single block", `[{"type":"text","text":"only"}]`, "only"},
		{"empty string", `""`, ""},
		{"unrecognized object", `{"foo":1}`, `{"foo":1}`},
		{"number", `42`, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceContent(json.RawMessage(tt.raw)))
		})
	}
}

func TestNormalizeChatEvent_KindResolution(t *testing.T) {
	chunk, ok := normalizeChatEvent(json.RawMessage(`{"state":"delta","text":"hi"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkDelta, chunk.Kind)
	assert.Equal(t, "hi", chunk.Content)

	// No kind or state defaults to delta.
	chunk, ok = normalizeChatEvent(json.RawMessage(`{"text":"implicit"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkDelta, chunk.Kind)
	assert.Equal(t, "implicit", chunk.Content)

	// kind takes precedence over state.
	chunk, ok = normalizeChatEvent(json.RawMessage(`{"kind":"final","state":"delta","text":"done"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkFinal, chunk.Kind)
}

func TestNormalizeChatEvent_ContentSources(t *testing.T) {
	// Direct text wins over content.
	chunk, ok := normalizeChatEvent(json.RawMessage(`{"state":"final","text":"t","content":"c"}`))
	require.True(t, ok)
	assert.Equal(t, "t", chunk.Content)

	// Falls back to content.
	chunk, ok = normalizeChatEvent(json.RawMessage(`{"state":"final","content":"c"}`))
	require.True(t, ok)
	assert.Equal(t, "c", chunk.Content)

	// Then to the nested message object.
	chunk, ok = normalizeChatEvent(json.RawMessage(
		`{"state":"final","message":{"role":"assistant","content":[{"type":"text","text":"m"}]}}`))
	require.True(t, ok)
	assert.Equal(t, "m", chunk.Content)

	chunk, ok = normalizeChatEvent(json.RawMessage(`{"state":"final","message":{"text":"mt"}}`))
	require.True(t, ok)
	assert.Equal(t, "mt", chunk.Content)
}

func TestNormalizeChatEvent_ToolChunks(t *testing.T) {
	chunk, ok := normalizeChatEvent(json.RawMessage(
		`{"kind":"tool_call","toolName":"grep","args":{"pattern":"x"},"runId":"r1"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkToolStart, chunk.Kind)
	assert.Equal(t, "grep", chunk.ToolName)
	assert.Equal(t, `{"pattern":"x"}`, chunk.ToolArgs)
	assert.Equal(t, "r1", chunk.RunID)

	// Legacy naming: tool_start, tool field instead of toolName.
	chunk, ok = normalizeChatEvent(json.RawMessage(`{"kind":"tool_start","tool":"ls"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkToolStart, chunk.Kind)
	assert.Equal(t, "ls", chunk.ToolName)

	chunk, ok = normalizeChatEvent(json.RawMessage(
		`{"kind":"tool_result","toolName":"grep","result":"3 matches"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkToolEnd, chunk.Kind)
	assert.Equal(t, "3 matches", chunk.ToolResult)

	chunk, ok = normalizeChatEvent(json.RawMessage(`{"kind":"tool_end","tool":"ls","output":"files"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkToolEnd, chunk.Kind)
	assert.Equal(t, "files", chunk.ToolResult)
}

func TestNormalizeChatEvent_ErrorAndAborted(t *testing.T) {
	chunk, ok := normalizeChatEvent(json.RawMessage(`{"kind":"error","error":"boom"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkError, chunk.Kind)
	assert.Equal(t, "boom", chunk.Content)

	// Error carried as an object still coerces to a string.
	chunk, ok = normalizeChatEvent(json.RawMessage(`{"kind":"error","error":{"message":"nested boom"}}`))
	require.True(t, ok)
	assert.Equal(t, "nested boom", chunk.Content)

	chunk, ok = normalizeChatEvent(json.RawMessage(`{"kind":"aborted","runId":"r9"}`))
	require.True(t, ok)
	assert.Equal(t, ChunkAborted, chunk.Kind)
	assert.Equal(t, "r9", chunk.RunID)
	assert.Empty(t, chunk.Content)
}

func TestNormalizeChatEvent_Malformed(t *testing.T) {
	_, ok := normalizeChatEvent(json.RawMessage(`not json`))
	assert.False(t, ok)

	_, ok = normalizeChatEvent(json.RawMessage(`[1,2,3]`))
	assert.False(t, ok)
}

func TestNormalizeMessage(t *testing.T) {
	raw := wireMessage{
		Role:      "assistant",
		Content:   json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`),
		RunID:     "r1",
		Timestamp: 1700000000,
		ToolCalls: json.RawMessage(`[{"name":"grep","args":{"pattern":"x"}}]`),
	}

	msg := normalizeMessage(raw)
	assert.Equal(t, "assistant", msg.Role)
	assert.Equal(t, "a\nb", msg.Content)
	assert.Equal(t, "r1", msg.RunID)
	assert.Equal(t, int64(1700000000), msg.Timestamp)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "grep", msg.ToolCalls[0].Name)
	assert.Equal(t, `{"pattern":"x"}`, msg.ToolCalls[0].Args)
}

func TestNormalizeMessage_TextFallback(t *testing.T) {
	msg := normalizeMessage(wireMessage{
		Role: "user",
		Text: json.RawMessage(`"from text field"`),
	})
	assert.Equal(t, "from text field", msg.Content)

	msg = normalizeMessage(wireMessage{Role: "user"})
	assert.Equal(t, "", msg.Content)
}
