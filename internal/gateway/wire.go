package gateway

import "encoding/json"

// frame is a raw protocol frame. Every message on the wire is one of
// three shapes discriminated by Type: "req", "res", or "event".
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // request method
	Params  json.RawMessage `json:"params,omitempty"`  // request params
	OK      *bool           `json:"ok,omitempty"`      // response ok
	Payload json.RawMessage `json:"payload,omitempty"` // response/event payload
	Event   string          `json:"event,omitempty"`   // event name
	Seq     int64           `json:"seq,omitempty"`     // event sequence number
	Error   *wireError      `json:"error,omitempty"`   // response error
}

type wireError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// challengePayload is the connect.challenge event payload. The nonce is
// held only between receipt and the connect request that follows it.
type challengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts"`
}

// connectParams is sent as the "connect" request.
type connectParams struct {
	MinProtocol int           `json:"minProtocol"`
	MaxProtocol int           `json:"maxProtocol"`
	Client      connectClient `json:"client"`
	Auth        *connectAuth  `json:"auth,omitempty"`
	Role        string        `json:"role"`
	Scopes      []string      `json:"scopes"`
	Caps        []string      `json:"caps"`
	UserAgent   string        `json:"userAgent"`
	Locale      string        `json:"locale"`
}

type connectClient struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Platform   string `json:"platform"`
	Mode       string `json:"mode"`
	InstanceID string `json:"instanceId"`
}

type connectAuth struct {
	Token string `json:"token,omitempty"`
}

// chatSendParams is the "chat.send" request params.
type chatSendParams struct {
	SessionKey     string           `json:"sessionKey"`
	Message        string           `json:"message"`
	IdempotencyKey string           `json:"idempotencyKey"`
	Attachments    []wireAttachment `json:"attachments,omitempty"`
}

type wireAttachment struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"` // base64 payload
}

// chatHistoryParams is the "chat.history" request params.
type chatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit"`
}

// chatHistoryResult is the "chat.history" response payload.
type chatHistoryResult struct {
	Messages []wireMessage `json:"messages"`
}

// wireMessage is a chat message as the gateway serializes it. Content is
// left raw because the gateway emits strings, block arrays, and bare
// objects interchangeably; coerceContent flattens all of them.
type wireMessage struct {
	Role        string           `json:"role"`
	Content     json.RawMessage  `json:"content"`
	Text        json.RawMessage  `json:"text"`
	RunID       string           `json:"runId,omitempty"`
	ToolCalls   json.RawMessage  `json:"toolCalls,omitempty"`
	Timestamp   int64            `json:"timestamp,omitempty"`
	Attachments []wireAttachment `json:"attachments,omitempty"`
}

// sessionsListParams is the "sessions.list" request params.
type sessionsListParams struct {
	AgentID string `json:"agentId"`
}

type sessionsListResult struct {
	Sessions []SessionInfo `json:"sessions"`
}

type nodeListResult struct {
	Nodes []NodeInfo `json:"nodes"`
}

// chatEventPayload is the generic "chat" push event payload. Kind and
// State are the same field under two generations of naming.
type chatEventPayload struct {
	Kind       string          `json:"kind"`
	State      string          `json:"state"`
	RunID      string          `json:"runId"`
	SessionKey string          `json:"sessionKey"`
	Text       json.RawMessage `json:"text"`
	Content    json.RawMessage `json:"content"`
	Message    json.RawMessage `json:"message"`
	ToolName   string          `json:"toolName"`
	Tool       string          `json:"tool"`
	Args       json.RawMessage `json:"args"`
	Result     json.RawMessage `json:"result"`
	Output     json.RawMessage `json:"output"`
	Error      json.RawMessage `json:"error"`
}
