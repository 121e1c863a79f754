package domain

// Exchange is one user question paired with its possibly pending answer.
// Status messages have an empty Question.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// IsStatus returns true for system/status entries.
func (e Exchange) IsStatus() bool {
	return e.Question == ""
}

// ReconstructExchanges rebuilds the in-memory transcript from persisted
// messages in creation order. Each user message opens a new Exchange and the
// next bot message fills its answer. Bot messages with no open Exchange and
// system messages are skipped.
func ReconstructExchanges(msgs []Message) []Exchange {
	out := make([]Exchange, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, Exchange{Question: m.Content})
		case RoleBot:
			if len(out) > 0 {
				out[len(out)-1].Answer = m.Content
			}
		}
	}
	return out
}
