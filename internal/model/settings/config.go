package settings

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// SessionConfig 描述一次会话启动时读取的本地配置快照。
type SessionConfig struct {
	PhoneNumber      string     `json:"phoneNumber" yaml:"phoneNumber"`
	KnowledgeSnippet string     `json:"knowledgeText" yaml:"knowledgeText"`
	Saved            bool       `json:"saved" yaml:"saved"`
	SavedAt          *time.Time `json:"savedAt,omitempty" yaml:"savedAt,omitempty"`
}

// IsZero reports whether nothing has been saved yet.
func (c SessionConfig) IsZero() bool {
	return !c.Saved && c.PhoneNumber == "" && c.KnowledgeSnippet == ""
}

// Status 生成与原控制面板一致的配置状态摘要。
type Status struct {
	Saved     bool   `json:"saved"`
	Phone     string `json:"phone"`
	Knowledge string `json:"knowledge"`
	SavedAt   string `json:"savedAt,omitempty"`
}

// Summarize renders the human readable config status.
func (c SessionConfig) Summarize() Status {
	if !c.Saved {
		return Status{Phone: "Not set", Knowledge: "Not set"}
	}

	status := Status{Saved: true, Phone: c.PhoneNumber, Knowledge: "Not set"}
	if status.Phone == "" {
		status.Phone = "Not set"
	}
	if c.KnowledgeSnippet != "" {
		status.Knowledge = fmt.Sprintf("Set (%d chars)", utf8.RuneCountInString(c.KnowledgeSnippet))
	}
	if c.SavedAt != nil {
		status.SavedAt = c.SavedAt.Local().Format(time.DateTime)
	}
	return status
}
