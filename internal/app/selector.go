package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"mastery-quiz/internal/domain"
)

// SelectorConfig holds session sizes and the unseen-pool thresholds below
// which the seen filter is dropped.
type SelectorConfig struct {
	SingleSize      int
	SingleThreshold int
	MixedSize       int
	MixedThreshold  int
}

func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{SingleSize: 10, SingleThreshold: 5, MixedSize: 20, MixedThreshold: 10}
}

// Selection is the outcome of one draw.
type Selection struct {
	Questions []domain.Question
	// NeedsGeneration is set when the pool is empty; Questions is then nil.
	NeedsGeneration bool
	// HistoryReset is set when too few unseen questions forced a global history reset.
	HistoryReset bool
}

// Selector draws session questions, preferring ones not seen before.
type Selector struct {
	archive ArchiveStore
	history HistoryStore
	cfg     SelectorConfig
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector(archive ArchiveStore, history HistoryStore, cfg SelectorConfig, logger *slog.Logger) *Selector {
	return NewSelectorWithRand(archive, history, cfg, logger, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewSelectorWithRand is test-only for deterministic shuffles.
func NewSelectorWithRand(archive ArchiveStore, history HistoryStore, cfg SelectorConfig, logger *slog.Logger, rng *rand.Rand) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{archive: archive, history: history, cfg: cfg, logger: logger, rng: rng}
}

// Select draws questions for target. An empty pool is not an error: the
// caller gets NeedsGeneration and decides how to fill it.
func (s *Selector) Select(ctx context.Context, target domain.Target) (Selection, error) {
	var (
		pool           []domain.Question
		size, minFresh int
		err            error
	)
	switch target.Kind() {
	case domain.TargetSingle:
		pool, err = s.archive.Archive(ctx, target.TopicID())
		size, minFresh = s.cfg.SingleSize, s.cfg.SingleThreshold
	case domain.TargetMixed:
		pool, err = s.archive.AllQuestions(ctx)
		size, minFresh = s.cfg.MixedSize, s.cfg.MixedThreshold
	default:
		return Selection{}, fmt.Errorf("unsupported target kind %d", target.Kind())
	}
	if err != nil {
		return Selection{}, fmt.Errorf("load pool for %s: %w", target, err)
	}
	if len(pool) == 0 {
		return Selection{NeedsGeneration: true}, nil
	}

	seen, err := s.history.SeenTexts(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("load seen history: %w", err)
	}
	fresh := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if _, ok := seen[q.Key()]; !ok {
			fresh = append(fresh, q)
		}
	}

	sel := Selection{}
	if len(fresh) < minFresh {
		// The reset is global on purpose: other topics' seen entries are forgiven too.
		if err := s.history.Reset(ctx); err != nil {
			return Selection{}, fmt.Errorf("reset seen history: %w", err)
		}
		s.logger.Info("seen pool exhausted, history reset", "target", target.String(), "unseen", len(fresh), "pool", len(pool))
		fresh = append(fresh[:0], pool...)
		sel.HistoryReset = true
	}

	s.shuffle(fresh)
	if len(fresh) > size {
		fresh = fresh[:size]
	}
	sel.Questions = fresh
	return sel, nil
}

func (s *Selector) shuffle(qs []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}
