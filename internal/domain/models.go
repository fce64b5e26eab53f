package domain

import (
	"fmt"
	"strings"
	"time"
)

// MixedModeTopicID is the topic key recorded for cross-topic sessions.
const MixedModeTopicID = "mixed_mode"

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID            string   `json:"id"`
	Topic         string   `json:"topic"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"` // index into Options
	Explanation   string   `json:"explanation"`
	CodeSnippet   string   `json:"codeSnippet,omitempty"`
}

// Key is the identity used for deduplication and seen tracking.
func (q Question) Key() string {
	return Normalize(q.Text)
}

// Validate rejects blank text and out-of-range answers.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidQuestion)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("%w: correct answer %d out of range for %d options", ErrInvalidQuestion, q.CorrectAnswer, len(q.Options))
	}
	return nil
}

// Normalize trims and lowercases question text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// TopicArchive is the persisted question bank of one topic.
type TopicArchive struct {
	TopicID     string     `json:"topicId"`
	Questions   []Question `json:"questions"`
	LastUpdated int64      `json:"lastUpdated"` // epoch millis
}

// SessionResult is one completed quiz session.
type SessionResult struct {
	TopicID   string `json:"topicId"`
	Score     int    `json:"score"`
	Total     int    `json:"total"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

// Validate checks score/total bounds.
func (r SessionResult) Validate() error {
	if r.Total <= 0 || r.Score < 0 || r.Score > r.Total {
		return fmt.Errorf("%w: score %d of %d", ErrInvalidResult, r.Score, r.Total)
	}
	return nil
}

// Percent returns the session accuracy in the 0-100 range. A result without
// questions counts as zero.
func (r SessionResult) Percent() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Score) / float64(r.Total) * 100
}

// Stats summarizes the result ledger.
type Stats struct {
	TotalQuizzes int    `json:"totalQuizzes"`
	AvgScore     int    `json:"avgScore"`
	BestTopic    string `json:"bestTopic"`
	Mastery      int    `json:"mastery"`
}

// Difficulty grades a topic.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Topic describes one quiz module.
type Topic struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Difficulty  Difficulty `json:"difficulty" yaml:"difficulty"`
	Time        string     `json:"time" yaml:"time"`
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// SyncProgress reports bulk-population progress for one topic.
type SyncProgress struct {
	Current int    `json:"current"`
	Target  int    `json:"target"`
	Topic   string `json:"topic"`
}
