package gateway

import "encoding/json"

// Status is the connection state of the client. Transitions are driven
// by transport lifecycle and handshake completion only.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// ChunkKind tags a ChatChunk variant.
type ChunkKind string

const (
	ChunkDelta     ChunkKind = "delta"
	ChunkFinal     ChunkKind = "final"
	ChunkError     ChunkKind = "error"
	ChunkToolStart ChunkKind = "tool_start"
	ChunkToolEnd   ChunkKind = "tool_end"
	ChunkAborted   ChunkKind = "aborted"
)

// ChatChunk is one normalized streaming chat event.
type ChatChunk struct {
	Kind       ChunkKind
	RunID      string
	SessionKey string
	Content    string // delta/final text, error message
	ToolName   string // tool_start/tool_end
	ToolArgs   string // tool_start
	ToolResult string // tool_end
}

// ChatMessage is a normalized chat history entry. Content is always
// plain text, never a raw wire object.
type ChatMessage struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	RunID       string       `json:"runId,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ToolCall is a tool invocation record attached to a history message.
type ToolCall struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// Attachment is a file carried alongside a chat message. Content is the
// base64-encoded payload.
type Attachment struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
	Content  string `json:"content"`
}

// SessionInfo describes a remote conversation handle. Key encodes the
// agent id and channel type, e.g. "agent:main:scc:1a2b3c4d".
type SessionInfo struct {
	Key          string `json:"key"`
	Label        string `json:"label,omitempty"`
	LastActivity int64  `json:"lastActivity,omitempty"`
	Channel      string `json:"channel,omitempty"`
	Model        string `json:"model,omitempty"`
	Tokens       int64  `json:"tokens,omitempty"`
}

// NodeInfo describes a connected remote worker.
type NodeInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Version   string `json:"version,omitempty"`
	Connected bool   `json:"connected,omitempty"`
	LastSeen  int64  `json:"lastSeen,omitempty"`
}

// SendResult is the acknowledgment for chat.send. It confirms receipt
// of the request, not completion of the chat turn; the turn itself
// arrives later as streamed chat events.
type SendResult struct {
	RunID      string `json:"runId"`
	Status     string `json:"status"`
	AcceptedAt int64  `json:"acceptedAt,omitempty"`
}

// Callbacks are invoked synchronously from the read loop. All fields
// are optional; nil callbacks are skipped.
type Callbacks struct {
	OnStatusChange func(status Status)
	OnChatEvent    func(chunk ChatChunk)
	OnPresence     func(entries []json.RawMessage)
	OnHello        func(payload json.RawMessage)
	OnError        func(message string)
}
