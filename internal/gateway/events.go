package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// present reports whether a raw JSON value carries an actual value
// (anything other than absent or an explicit null).
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// coerceContent flattens any wire "content" value into plain text. The
// gateway emits content as a string, an array of {text} blocks, or a
// bare object depending on the event source; everything downstream of
// the wire only ever sees a string.
func coerceContent(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, len(blocks))
		for i, b := range blocks {
			parts[i] = b.Text
		}
		return strings.Join(parts, "\n")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"text", "content", "message"} {
			if inner, ok := obj[key]; ok && present(inner) {
				return coerceContent(inner)
			}
		}
	}

	// Last resort: the JSON text itself.
	return string(bytes.TrimSpace(raw))
}

// messageBody is the nested message object some chat events carry
// instead of top-level text/content.
type messageBody struct {
	Content json.RawMessage `json:"content"`
	Text    json.RawMessage `json:"text"`
}

// extractText pulls the chunk text from a chat event payload, trying
// the direct text field, the direct content field, then the nested
// message object, in that order.
func extractText(p *chatEventPayload) string {
	if present(p.Text) {
		return coerceContent(p.Text)
	}
	if present(p.Content) {
		return coerceContent(p.Content)
	}
	if present(p.Message) {
		var body messageBody
		if err := json.Unmarshal(p.Message, &body); err == nil {
			if present(body.Content) {
				return coerceContent(body.Content)
			}
			if present(body.Text) {
				return coerceContent(body.Text)
			}
		}
		return coerceContent(p.Message)
	}
	return ""
}

// normalizeChatEvent reinterprets a generic "chat" push event payload
// into a typed chunk. Unparsable payloads report ok=false and are
// dropped by the caller.
func normalizeChatEvent(payload json.RawMessage) (ChatChunk, bool) {
	var p chatEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ChatChunk{}, false
	}

	kind := p.Kind
	if kind == "" {
		kind = p.State
	}
	if kind == "" {
		kind = "delta"
	}

	chunk := ChatChunk{
		RunID:      p.RunID,
		SessionKey: p.SessionKey,
	}

	switch kind {
	case "tool_call", "tool_start":
		chunk.Kind = ChunkToolStart
		chunk.ToolName = toolName(&p)
		chunk.ToolArgs = coerceContent(p.Args)
	case "tool_result", "tool_end":
		chunk.Kind = ChunkToolEnd
		chunk.ToolName = toolName(&p)
		if present(p.Result) {
			chunk.ToolResult = coerceContent(p.Result)
		} else {
			chunk.ToolResult = coerceContent(p.Output)
		}
	case "error":
		chunk.Kind = ChunkError
		if present(p.Error) {
			chunk.Content = coerceContent(p.Error)
		} else {
			chunk.Content = extractText(&p)
		}
	case "aborted":
		chunk.Kind = ChunkAborted
	case "final":
		chunk.Kind = ChunkFinal
		chunk.Content = extractText(&p)
	default:
		chunk.Kind = ChunkDelta
		chunk.Content = extractText(&p)
	}

	return chunk, true
}

func toolName(p *chatEventPayload) string {
	if p.ToolName != "" {
		return p.ToolName
	}
	return p.Tool
}

// normalizeMessage converts a raw history message into the caller-facing
// shape, coercing content and tool-call args to plain text.
func normalizeMessage(m wireMessage) ChatMessage {
	msg := ChatMessage{
		Role:      m.Role,
		RunID:     m.RunID,
		Timestamp: m.Timestamp,
	}

	if present(m.Content) {
		msg.Content = coerceContent(m.Content)
	} else {
		msg.Content = coerceContent(m.Text)
	}

	if present(m.ToolCalls) {
		var calls []struct {
			Name string          `json:"name"`
			Args json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(m.ToolCalls, &calls); err == nil {
			for _, tc := range calls {
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					Name: tc.Name,
					Args: coerceContent(tc.Args),
				})
			}
		}
	}

	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			FileName: a.FileName,
			MimeType: a.MimeType,
			Content:  a.Content,
		})
	}

	return msg
}
