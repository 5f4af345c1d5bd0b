package agent

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/zhouzirui/os1/backend/internal/model/agent"
)

// vadThreshold 超过该分值视为用户开始说话。
const vadThreshold = 0.5

type serverMessage struct {
	Type string `json:"type"`

	Metadata *struct {
		ConversationID string `json:"conversation_id"`
		OutputFormat   string `json:"agent_output_audio_format"`
	} `json:"conversation_initiation_metadata_event"`

	UserTranscription *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`

	AgentResponse *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`

	Ping *struct {
		EventID int64 `json:"event_id"`
		PingMS  int64 `json:"ping_ms"`
	} `json:"ping_event"`

	VADScore *struct {
		Score float64 `json:"vad_score"`
	} `json:"vad_score_event"`
}

type pong struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

// decoder 把服务端消息翻译为事件，并跟踪双方的发声状态以推导模式。
// 只在读循环内使用。
type decoder struct {
	agentSpeaking bool
	userSpeaking  bool
}

func newDecoder() *decoder {
	return &decoder{}
}

// decode returns the events carried by one message and an optional reply.
func (d *decoder) decode(data []byte, now time.Time) ([]agent.Event, any, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil, err
	}
	if msg.Type == "" {
		return nil, nil, errors.New("message without type")
	}

	switch msg.Type {
	case "conversation_initiation_metadata":
		ev := agent.Connected{At: now}
		if msg.Metadata != nil {
			ev.ConversationID = msg.Metadata.ConversationID
			ev.OutputFormat = msg.Metadata.OutputFormat
		}
		return []agent.Event{ev}, nil, nil

	case "ping":
		if msg.Ping == nil {
			return nil, nil, nil
		}
		return nil, pong{Type: "pong", EventID: msg.Ping.EventID}, nil

	case "user_transcript":
		var events []agent.Event
		events = append(events, d.agentDone()...)
		if d.userSpeaking {
			d.userSpeaking = false
			events = append(events, agent.AudioBoundary{Source: agent.UserAudio, Edge: agent.AudioEnd})
		}
		if msg.UserTranscription != nil && msg.UserTranscription.UserTranscript != "" {
			return append(events, agent.UserTranscript{Text: msg.UserTranscription.UserTranscript}), nil, nil
		}
		return append(events, flatEnvelope(data, agent.UserTranscript{})), nil, nil

	case "agent_response":
		if msg.AgentResponse != nil && msg.AgentResponse.AgentResponse != "" {
			return []agent.Event{agent.AgentResponse{Text: msg.AgentResponse.AgentResponse}}, nil, nil
		}
		return []agent.Event{flatEnvelope(data, agent.AgentResponse{})}, nil, nil

	case "audio":
		if d.agentSpeaking {
			return nil, nil, nil
		}
		d.agentSpeaking = true
		return []agent.Event{
			agent.AudioBoundary{Source: agent.AgentAudio, Edge: agent.AudioStart},
			agent.ModeChange{Mode: agent.ModeSpeaking},
		}, nil, nil

	case "interruption":
		return d.agentDone(), nil, nil

	case "vad_score":
		if msg.VADScore == nil {
			return nil, nil, nil
		}
		speaking := msg.VADScore.Score >= vadThreshold
		if speaking == d.userSpeaking {
			return nil, nil, nil
		}
		d.userSpeaking = speaking
		edge := agent.AudioEnd
		if speaking {
			edge = agent.AudioStart
		}
		return []agent.Event{agent.AudioBoundary{Source: agent.UserAudio, Edge: edge}}, nil, nil

	case "mode_change":
		var body struct {
			Mode json.RawMessage `json:"mode"`
		}
		_ = json.Unmarshal(data, &body)
		if mode, ok := agent.ModePayload(body.Mode); ok {
			return []agent.Event{agent.ModeChange{Mode: mode}}, nil, nil
		}
		return nil, nil, nil

	default:
		env, ok := agent.DecodeEnvelope(data)
		if !ok {
			return nil, nil, nil
		}
		return []agent.Event{env}, nil, nil
	}
}

func (d *decoder) agentDone() []agent.Event {
	if !d.agentSpeaking {
		return nil
	}
	d.agentSpeaking = false
	return []agent.Event{
		agent.AudioBoundary{Source: agent.AgentAudio, Edge: agent.AudioEnd},
		agent.ModeChange{Mode: agent.ModeListening},
	}
}

// flatEnvelope 处理不带 *_event 子对象的扁平消息，文本按 text/content/message 取值。
func flatEnvelope(data []byte, empty agent.Event) agent.Event {
	if env, ok := agent.DecodeEnvelope(data); ok && env.Text != "" {
		return env
	}
	return empty
}
