package app

import (
	"context"

	"mastery-quiz/internal/domain"
)

// ArchiveStore owns the per-topic question archives.
type ArchiveStore interface {
	Archive(ctx context.Context, topicID string) ([]domain.Question, error)
	AllQuestions(ctx context.Context) ([]domain.Question, error)
	SaveQuestions(ctx context.Context, topicID string, questions []domain.Question) (int, error)
	ClearArchive(ctx context.Context, topicID string) error
	Stats(ctx context.Context) (map[string]int, error)
}

// HistoryStore owns the global set of normalized texts already shown.
type HistoryStore interface {
	SeenTexts(ctx context.Context) (map[string]struct{}, error)
	MarkAsSeen(ctx context.Context, texts []string) error
	Reset(ctx context.Context) error
}

// ResultStore owns the completed-session ledger.
type ResultStore interface {
	Save(ctx context.Context, r domain.SessionResult) (bool, error)
	Results(ctx context.Context) ([]domain.SessionResult, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// Generator produces fresh questions for a topic. An empty batch means failure.
type Generator interface {
	GenerateBatch(ctx context.Context, topic domain.Topic, count int) []domain.Question
}

// Seeder fills every topic archive from local templates.
type Seeder interface {
	Run(ctx context.Context, progress func(domain.SyncProgress)) (int, error)
}

// TopicCatalog resolves topic keys.
type TopicCatalog interface {
	Lookup(topicID string) (domain.Topic, bool)
	Title(topicID string) string
}

// SessionRepository abstracts where active sessions live (in-memory, Redis).
type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Take removes and returns the session; a second Take reports ErrSessionNotFound.
	Take(ctx context.Context, sessionID string) (*Session, error)
}
