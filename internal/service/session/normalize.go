package session

import (
	"log"

	"github.com/zhouzirui/os1/backend/internal/model/agent"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
)

// Line 是一条待写入记录的发言方与文本。
type Line struct {
	Speaker transcript.Speaker
	Text    string
}

// Normalize folds one remote content event into at most one transcript line.
// Lifecycle events (Connected, Disconnected, Failure) are handled by the
// façade and never produce a line here.
func Normalize(ev agent.Event) (Line, bool) {
	switch e := ev.(type) {
	case agent.ModeChange:
		switch e.Mode {
		case agent.ModeSpeaking:
			return Line{Speaker: transcript.System, Text: "AI is speaking..."}, true
		case agent.ModeListening:
			return Line{Speaker: transcript.System, Text: "AI is listening..."}, true
		default:
			return Line{}, false
		}
	case agent.UserTranscript:
		return textLine(transcript.User, e.Text)
	case agent.AgentResponse:
		return textLine(transcript.Agent, e.Text)
	case agent.Envelope:
		return normalizeEnvelope(e)
	case agent.AudioBoundary:
		log.Printf("[session] %s audio %s", e.Source, e.Edge)
		if e.Source == agent.UserAudio && e.Edge == agent.AudioStart {
			return Line{Speaker: transcript.System, Text: "User audio detected"}, true
		}
		return Line{}, false
	default:
		return Line{}, false
	}
}

func normalizeEnvelope(e agent.Envelope) (Line, bool) {
	switch e.Type {
	case "user_transcript", "user_message":
		return textLine(transcript.User, e.Text)
	case "agent_response", "agent_message":
		return textLine(transcript.Agent, e.Text)
	case "conversation_start":
		return Line{Speaker: transcript.System, Text: "Conversation started"}, true
	case "conversation_end":
		return Line{Speaker: transcript.System, Text: "Conversation ended"}, true
	default:
		return Line{}, false
	}
}

func textLine(speaker transcript.Speaker, text string) (Line, bool) {
	if text == "" {
		return Line{}, false
	}
	return Line{Speaker: speaker, Text: text}, true
}
