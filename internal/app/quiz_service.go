package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mastery-quiz/internal/catalog"
	"mastery-quiz/internal/domain"
)

const (
	// PointsPerCorrect is awarded per correct answer at session end.
	PointsPerCorrect = 10
	// LifetimePointsPerCorrect weighs the ledger for the dashboard total.
	LifetimePointsPerCorrect = 5
)

// Dependencies wires the stores and collaborators a QuizService needs.
type Dependencies struct {
	Archive   ArchiveStore
	History   HistoryStore
	Results   ResultStore
	Sessions  SessionRepository
	Generator Generator
	Seeder    Seeder
	Topics    TopicCatalog
	Selector  *Selector
	Logger    *slog.Logger
	// GenerateCount is the batch size requested when a topic archive is empty.
	GenerateCount int
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	archive   ArchiveStore
	history   HistoryStore
	results   ResultStore
	sessions  SessionRepository
	generator Generator
	seeder    Seeder
	topics    TopicCatalog
	selector  *Selector
	logger    *slog.Logger
	count     int
	now       func() time.Time

	// generation coalesces concurrent requests for the same empty topic.
	generation singleflight.Group
}

func NewQuizService(deps Dependencies) *QuizService {
	return NewQuizServiceWithClock(deps, time.Now)
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(deps Dependencies, now func() time.Time) *QuizService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	count := deps.GenerateCount
	if count <= 0 {
		count = 10
	}
	selector := deps.Selector
	if selector == nil {
		selector = NewSelector(deps.Archive, deps.History, DefaultSelectorConfig(), logger)
	}
	return &QuizService{
		archive:   deps.Archive,
		history:   deps.History,
		results:   deps.Results,
		sessions:  deps.Sessions,
		generator: deps.Generator,
		seeder:    deps.Seeder,
		topics:    deps.Topics,
		selector:  selector,
		logger:    logger,
		count:     count,
		now:       now,
	}
}

// Completion is the outcome of a finished session.
type Completion struct {
	Result domain.SessionResult `json:"result"`
	Points int                  `json:"points"`
	// Recorded is false when the ledger already held this session.
	Recorded bool `json:"recorded"`
}

// Dashboard aggregates ledger statistics and archive sizes.
type Dashboard struct {
	Stats         domain.Stats   `json:"stats"`
	Points        int            `json:"points"`
	ArchiveTotal  int            `json:"archiveTotal"`
	ArchiveCounts map[string]int `json:"archiveCounts"`
}

// StartSession draws questions for target and registers an active session.
func (s *QuizService) StartSession(ctx context.Context, target domain.Target) (*Session, error) {
	title := catalog.MixedSessionTitle
	var topic domain.Topic
	if target.Kind() == domain.TargetSingle {
		var ok bool
		if topic, ok = s.topics.Lookup(target.TopicID()); !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTopic, target.TopicID())
		}
		title = topic.Title
	}

	sel, err := s.selector.Select(ctx, target)
	if err != nil {
		return nil, err
	}

	generated := false
	if sel.NeedsGeneration {
		switch target.Kind() {
		case domain.TargetSingle:
			qs, err := s.generate(ctx, topic)
			if err != nil {
				return nil, err
			}
			sel = Selection{Questions: qs}
			generated = true
		case domain.TargetMixed:
			if _, err := s.seeder.Run(ctx, nil); err != nil {
				return nil, fmt.Errorf("seed archives: %w", err)
			}
			if sel, err = s.selector.Select(ctx, target); err != nil {
				return nil, err
			}
		}
	}
	if len(sel.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	session := &Session{
		ID:           uuid.NewString(),
		TopicID:      target.TopicID(),
		Title:        title,
		Questions:    sel.Questions,
		HistoryReset: sel.HistoryReset,
		Generated:    generated,
		StartedAt:    s.now(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.logger.Info("session started", "session", session.ID, "topic", session.TopicID, "questions", len(session.Questions), "generated", generated, "history_reset", sel.HistoryReset)
	return session, nil
}

// generate asks the provider for a batch, merges it into the archive and
// returns the distinct questions of the batch. Concurrent callers for one
// topic share a single call that outlives any one caller's cancellation.
func (s *QuizService) generate(ctx context.Context, topic domain.Topic) ([]domain.Question, error) {
	ch := s.generation.DoChan(topic.ID, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		batch := s.generator.GenerateBatch(shared, topic, s.count)
		if len(batch) == 0 {
			return nil, domain.ErrNoQuestions
		}
		added, err := s.archive.SaveQuestions(shared, topic.ID, batch)
		if err != nil {
			return nil, fmt.Errorf("archive generated questions: %w", err)
		}
		s.logger.Info("generated questions archived", "topic", topic.ID, "batch", len(batch), "added", added)
		return distinct(batch), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	batch := append([]domain.Question(nil), res.Val.([]domain.Question)...)
	if len(batch) > s.selector.cfg.SingleSize && s.selector.cfg.SingleSize > 0 {
		batch = batch[:s.selector.cfg.SingleSize]
	}
	return batch, nil
}

// distinct keeps the first question of each normalized text.
func distinct(qs []domain.Question) []domain.Question {
	seen := make(map[string]struct{}, len(qs))
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if _, dup := seen[q.Key()]; dup {
			continue
		}
		seen[q.Key()] = struct{}{}
		out = append(out, q)
	}
	return out
}

// CompleteSession records the score of an active session and marks exactly
// its shown questions as seen. The session is consumed.
func (s *QuizService) CompleteSession(ctx context.Context, sessionID string, score int) (Completion, error) {
	session, err := s.sessions.Take(ctx, sessionID)
	if err != nil {
		return Completion{}, err
	}

	result := domain.SessionResult{
		TopicID:   session.TopicID,
		Score:     score,
		Total:     len(session.Questions),
		Timestamp: domain.Millis(s.now()),
	}
	if err := result.Validate(); err != nil {
		s.restore(ctx, session)
		return Completion{}, err
	}
	// MarkAsSeen is idempotent; it runs first so any failure below can
	// restore the session for a retry.
	if err := s.history.MarkAsSeen(ctx, session.Texts()); err != nil {
		s.restore(ctx, session)
		return Completion{}, fmt.Errorf("mark session %s seen: %w", session.ID, err)
	}
	recorded, err := s.results.Save(ctx, result)
	if err != nil {
		s.restore(ctx, session)
		return Completion{}, err
	}

	s.logger.Info("session completed", "session", session.ID, "topic", result.TopicID, "score", score, "total", result.Total)
	return Completion{Result: result, Points: score * PointsPerCorrect, Recorded: recorded}, nil
}

func (s *QuizService) restore(ctx context.Context, session *Session) {
	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.Warn("restore session failed", "session", session.ID, "err", err)
	}
}

// Session returns an active session without consuming it.
func (s *QuizService) Session(ctx context.Context, sessionID string) (*Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Dashboard reports ledger statistics, lifetime points and archive sizes.
func (s *QuizService) Dashboard(ctx context.Context) (Dashboard, error) {
	stats, err := s.results.Stats(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	results, err := s.results.Results(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	counts, err := s.archive.Stats(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Stats: stats, ArchiveCounts: counts}
	for _, r := range results {
		d.Points += r.Score * LifetimePointsPerCorrect
	}
	for _, n := range counts {
		d.ArchiveTotal += n
	}
	return d, nil
}

// Sync tops up every topic archive from local templates.
func (s *QuizService) Sync(ctx context.Context, progress func(domain.SyncProgress)) (int, error) {
	added, err := s.seeder.Run(ctx, progress)
	if err != nil {
		return added, fmt.Errorf("sync archives: %w", err)
	}
	return added, nil
}

// ResetHistory forgets every seen question.
func (s *QuizService) ResetHistory(ctx context.Context) error {
	return s.history.Reset(ctx)
}

// ClearArchive drops one topic's archive.
func (s *QuizService) ClearArchive(ctx context.Context, topicID string) error {
	if topicID == "" {
		return errors.New("topic id is required")
	}
	return s.archive.ClearArchive(ctx, topicID)
}
