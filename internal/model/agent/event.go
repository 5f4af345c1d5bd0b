package agent

import "time"

// Event 是远端智能体推送事件的封闭集合，在传输边界完成解码。
type Event interface {
	isAgentEvent()
}

// AudioSource 表示音频边界事件的来源。
type AudioSource string

const (
	UserAudio  AudioSource = "user"
	AgentAudio AudioSource = "agent"
)

// AudioEdge 表示音频开始或结束。
type AudioEdge string

const (
	AudioStart AudioEdge = "start"
	AudioEnd   AudioEdge = "end"
)

// Mode values reported by the agent.
const (
	ModeListening = "listening"
	ModeSpeaking  = "speaking"
)

// Connected 远端确认会话建立。
type Connected struct {
	ConversationID string
	OutputFormat   string
	At             time.Time
}

// Disconnected 远端主动结束会话。
type Disconnected struct {
	Reason string
}

// Failure 会话运行期间的远端错误。
type Failure struct {
	Err error
}

// ModeChange 智能体模式切换。
type ModeChange struct {
	Mode string
}

// UserTranscript 用户语音的转写结果。Text 为空表示载荷中没有可提取的文本。
type UserTranscript struct {
	Text string
}

// AgentResponse 智能体的文本回复。
type AgentResponse struct {
	Text string
}

// Envelope 通用消息，按 Type 分发。
type Envelope struct {
	Type string
	Text string
}

// AudioBoundary 音频开始/结束标记。
type AudioBoundary struct {
	Source AudioSource
	Edge   AudioEdge
}

func (Connected) isAgentEvent()      {}
func (Disconnected) isAgentEvent()   {}
func (Failure) isAgentEvent()        {}
func (ModeChange) isAgentEvent()     {}
func (UserTranscript) isAgentEvent() {}
func (AgentResponse) isAgentEvent()  {}
func (Envelope) isAgentEvent()       {}
func (AudioBoundary) isAgentEvent()  {}
