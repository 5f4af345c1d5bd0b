package agent

import (
	"encoding/json"
	"testing"
)

func TestTextPayloadAcceptsBothShapes(t *testing.T) {
	if got, ok := TextPayload(json.RawMessage(`{"text":"hello"}`)); !ok || got != "hello" {
		t.Fatalf("structured payload: got %q ok=%v", got, ok)
	}
	if got, ok := TextPayload(json.RawMessage(`"hello"`)); !ok || got != "hello" {
		t.Fatalf("string payload: got %q ok=%v", got, ok)
	}
	for _, raw := range []string{`{}`, `{"text":""}`, `""`, `42`, `null`, ``, `{"text":7}`} {
		if _, ok := TextPayload(json.RawMessage(raw)); ok {
			t.Fatalf("expected no text for %s", raw)
		}
	}
}

func TestModePayload(t *testing.T) {
	if got, ok := ModePayload(json.RawMessage(`{"mode":"speaking"}`)); !ok || got != "speaking" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	if got, ok := ModePayload(json.RawMessage(`"listening"`)); !ok || got != "listening" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestDecodeEnvelopeTextPrecedence(t *testing.T) {
	env, ok := DecodeEnvelope(json.RawMessage(`{"type":"agent_message","content":"hi"}`))
	if !ok || env.Type != "agent_message" || env.Text != "hi" {
		t.Fatalf("unexpected envelope %+v ok=%v", env, ok)
	}

	env, _ = DecodeEnvelope(json.RawMessage(`{"type":"user_message","text":"a","content":"b","message":"c"}`))
	if env.Text != "a" {
		t.Fatalf("expected text field to win, got %q", env.Text)
	}

	env, _ = DecodeEnvelope(json.RawMessage(`{"type":"user_message","text":"","message":"c"}`))
	if env.Text != "c" {
		t.Fatalf("expected fallback to message, got %q", env.Text)
	}

	if _, ok := DecodeEnvelope(json.RawMessage(`{"content":"no type"}`)); ok {
		t.Fatal("expected envelope without type to be rejected")
	}
	if _, ok := DecodeEnvelope(json.RawMessage(`not json`)); ok {
		t.Fatal("expected invalid json to be rejected")
	}
}
