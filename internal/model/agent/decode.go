package agent

import (
	"bytes"
	"encoding/json"
	"strings"
)

// TextPayload 从 `{"text": "..."}` 或裸字符串载荷中提取文本。
func TextPayload(raw json.RawMessage) (string, bool) {
	return fieldOrString(raw, "text")
}

// ModePayload 从 `{"mode": "..."}` 或裸字符串载荷中提取模式。
func ModePayload(raw json.RawMessage) (string, bool) {
	return fieldOrString(raw, "mode")
}

// DecodeEnvelope parses a generic `{type, text|content|message}` message.
// A payload without a type yields ok=false.
func DecodeEnvelope(raw json.RawMessage) (Envelope, bool) {
	var msg struct {
		Type    string          `json:"type"`
		Text    json.RawMessage `json:"text"`
		Content json.RawMessage `json:"content"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Envelope{}, false
	}
	if strings.TrimSpace(msg.Type) == "" {
		return Envelope{}, false
	}

	env := Envelope{Type: msg.Type}
	for _, candidate := range []json.RawMessage{msg.Text, msg.Content, msg.Message} {
		if text, ok := stringValue(candidate); ok {
			env.Text = text
			break
		}
	}
	return env, true
}

func fieldOrString(raw json.RawMessage, field string) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	if text, ok := stringValue(raw); ok {
		return text, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	return stringValue(obj[field])
}

// stringValue 只接受非空 JSON 字符串。
func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if s == "" {
		return "", false
	}
	return s, true
}
