package app

import (
	"time"

	"mastery-quiz/internal/domain"
)

// Session is a started quiz awaiting completion.
type Session struct {
	ID           string            `json:"id"`
	TopicID      string            `json:"topicId"`
	Title        string            `json:"title"`
	Questions    []domain.Question `json:"questions"`
	HistoryReset bool              `json:"historyReset"`
	Generated    bool              `json:"generated"`
	StartedAt    time.Time         `json:"startedAt"`
}

// Texts returns the prompt texts of the shown questions.
func (s *Session) Texts() []string {
	texts := make([]string, len(s.Questions))
	for i, q := range s.Questions {
		texts[i] = q.Text
	}
	return texts
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Questions = make([]domain.Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	return &out
}
