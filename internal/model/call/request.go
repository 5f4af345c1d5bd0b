package call

import (
	"strconv"
	"time"
)

// Request 一次外呼请求记录。实际拨号不在本服务内完成。
type Request struct {
	ID             string    `json:"id"`
	PhoneNumber    string    `json:"phoneNumber"`
	HasKnowledge   bool      `json:"hasKnowledge"`
	KnowledgeChars int       `json:"knowledgeChars"`
	RequestedAt    time.Time `json:"requestedAt"`
}

// Summary renders the confirmation shown to the operator.
func (r Request) Summary() string {
	knowledge := "Not configured"
	if r.HasKnowledge {
		knowledge = "Configured (" + strconv.Itoa(r.KnowledgeChars) + " chars)"
	}
	return "Phone call functionality:\n\n" +
		"• Target: " + r.PhoneNumber + "\n" +
		"• Knowledge Base: " + knowledge + "\n\n" +
		"This requires integration with ElevenLabs telephony API or similar service."
}
