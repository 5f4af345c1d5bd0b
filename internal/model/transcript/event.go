package transcript

import "time"

// Speaker 标识一条转写记录的发言方。
type Speaker string

const (
	System Speaker = "System"
	User   Speaker = "User"
	Agent  Speaker = "AI"
)

// Event 是规范化后的一条对话记录，产生后不可修改。
type Event struct {
	ID        string    `json:"id" yaml:"id"`
	Speaker   Speaker   `json:"speaker" yaml:"speaker"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Valid 判断发言方是否属于已知集合。
func (s Speaker) Valid() bool {
	switch s {
	case System, User, Agent:
		return true
	default:
		return false
	}
}
