// Package results keeps the bounded log of completed sessions and derives
// dashboard statistics from it.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"mastery-quiz/internal/domain"
	"mastery-quiz/internal/kv"
)

const (
	ledgerKey = "results:ledger"
	// MaxEntries bounds the ledger; the oldest entries are evicted first.
	MaxEntries = 500
	// NoTopic is reported as best topic for an empty ledger.
	NoTopic = "N/A"
)

// Titler resolves topic keys to display titles.
type Titler interface {
	Title(topicID string) string
}

// Ledger persists results most-recent-first under a single key.
type Ledger struct {
	kv     kv.Store
	titles Titler
	logger *slog.Logger
}

func NewLedger(store kv.Store, titles Titler, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{kv: store, titles: titles, logger: logger}
}

// Results returns the ledger, most recent first.
func (l *Ledger) Results(ctx context.Context) ([]domain.SessionResult, error) {
	raw, err := l.kv.Get(ctx, ledgerKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var results []domain.SessionResult
	if err := json.Unmarshal(raw, &results); err != nil {
		l.logger.Warn("ignoring corrupt result ledger", "err", err)
		return nil, nil
	}
	return results, nil
}

// Save prepends r unless an entry with the same topic and timestamp exists.
// It reports whether the ledger changed.
func (l *Ledger) Save(ctx context.Context, r domain.SessionResult) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	saved := false
	err := l.kv.Update(ctx, ledgerKey, func(current []byte, found bool) ([]byte, bool, error) {
		saved = false
		var existing []domain.SessionResult
		if found {
			if err := json.Unmarshal(current, &existing); err != nil {
				existing = nil
			}
		}
		for _, e := range existing {
			if e.TopicID == r.TopicID && e.Timestamp == r.Timestamp {
				return nil, false, nil
			}
		}

		next := make([]domain.SessionResult, 0, len(existing)+1)
		next = append(next, r)
		next = append(next, existing...)
		if len(next) > MaxEntries {
			next = next[:MaxEntries]
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return nil, false, err
		}
		saved = true
		return payload, true, nil
	})
	if err != nil {
		return false, fmt.Errorf("save result: %w", err)
	}
	return saved, nil
}

// Stats aggregates the ledger.
//
// Mastery is a heuristic (two points per quiz plus half the average accuracy,
// capped at 100), not a calibrated measure of skill.
func (l *Ledger) Stats(ctx context.Context) (domain.Stats, error) {
	results, err := l.Results(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return Summarize(results, l.titles), nil
}

// Summarize computes Stats for results ordered most recent first.
func Summarize(results []domain.SessionResult, titles Titler) domain.Stats {
	if len(results) == 0 {
		return domain.Stats{BestTopic: NoTopic}
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	var order []string
	var sum float64
	for _, r := range results {
		pct := r.Percent()
		sum += pct
		b, ok := buckets[r.TopicID]
		if !ok {
			b = &bucket{}
			buckets[r.TopicID] = b
			order = append(order, r.TopicID)
		}
		b.sum += pct
		b.count++
	}

	best, highest := "", -1.0
	for _, id := range order {
		b := buckets[id]
		if avg := b.sum / float64(b.count); avg > highest {
			best, highest = id, avg
		}
	}

	avg := sum / float64(len(results))
	return domain.Stats{
		TotalQuizzes: len(results),
		AvgScore:     int(math.Round(avg)),
		BestTopic:    titles.Title(best),
		Mastery:      int(math.Min(100, math.Round(float64(len(results))*2+avg*0.5))),
	}
}
