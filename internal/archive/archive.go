// Package archive persists the de-duplicated question bank of every topic.
//
// Each topic lives under its own key ("archive:<topicID>") holding a JSON
// domain.TopicArchive. Question identity is the normalized text, not the ID.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mastery-quiz/internal/domain"
	"mastery-quiz/internal/kv"
)

const keyPrefix = "archive:"

// Store is the question archive. It owns the "archive:" key namespace.
type Store struct {
	kv     kv.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(store kv.Store, logger *slog.Logger) *Store {
	return NewStoreWithClock(store, logger, time.Now)
}

// NewStoreWithClock allows deterministic lastUpdated stamps in tests.
func NewStoreWithClock(store kv.Store, logger *slog.Logger, now func() time.Time) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: store, now: now, logger: logger}
}

// Archive returns the questions stored for topicID in arrival order.
// A missing or unreadable archive yields an empty result.
func (s *Store) Archive(ctx context.Context, topicID string) ([]domain.Question, error) {
	a, err := s.load(ctx, key(topicID))
	if err != nil {
		return nil, err
	}
	return a.Questions, nil
}

// AllQuestions concatenates every topic archive in topic key order.
func (s *Store) AllQuestions(ctx context.Context) ([]domain.Question, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var all []domain.Question
	for _, k := range keys {
		a, err := s.load(ctx, k)
		if err != nil {
			return nil, err
		}
		all = append(all, a.Questions...)
	}
	return all, nil
}

// SaveQuestions merges questions into the topic archive and returns how many
// were added. Questions whose normalized text is already archived, repeated
// earlier in the same batch, or that fail validation are dropped. When nothing
// survives the archive is not written.
func (s *Store) SaveQuestions(ctx context.Context, topicID string, questions []domain.Question) (int, error) {
	if err := validTopicID(topicID); err != nil {
		return 0, err
	}

	var added, invalid int
	k := key(topicID)
	err := s.kv.Update(ctx, k, func(current []byte, found bool) ([]byte, bool, error) {
		existing := domain.TopicArchive{}
		if found {
			if err := json.Unmarshal(current, &existing); err != nil {
				// Corrupt snapshot is replaced by the merge result.
				existing = domain.TopicArchive{}
			}
		}

		merged, rejected := merge(existing.Questions, questions)
		added = len(merged) - len(existing.Questions)
		invalid = rejected
		if added == 0 {
			return nil, false, nil
		}

		next, err := json.Marshal(domain.TopicArchive{
			TopicID:     topicID,
			Questions:   merged,
			LastUpdated: domain.Millis(s.now()),
		})
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("save questions for %s: %w", topicID, err)
	}
	if invalid > 0 {
		s.logger.Warn("dropped invalid questions", "topic", topicID, "count", invalid)
	}
	return added, nil
}

// ClearArchive removes the topic archive entirely.
func (s *Store) ClearArchive(ctx context.Context, topicID string) error {
	if err := s.kv.Delete(ctx, key(topicID)); err != nil {
		return fmt.Errorf("clear archive %s: %w", topicID, err)
	}
	return nil
}

// Topics lists the topic IDs that currently have an archive.
func (s *Store) Topics(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}

// Stats counts archived questions per topic. It is derived on every call.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	ids, err := s.Topics(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(ids))
	for _, id := range ids {
		a, err := s.load(ctx, key(id))
		if err != nil {
			return nil, err
		}
		stats[id] = len(a.Questions)
	}
	return stats, nil
}

func (s *Store) load(ctx context.Context, k string) (domain.TopicArchive, error) {
	raw, err := s.kv.Get(ctx, k)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.TopicArchive{}, nil
	}
	if err != nil {
		return domain.TopicArchive{}, fmt.Errorf("read %s: %w", k, err)
	}
	var a domain.TopicArchive
	if err := json.Unmarshal(raw, &a); err != nil {
		s.logger.Warn("ignoring corrupt archive payload", "key", k, "err", err)
		return domain.TopicArchive{}, nil
	}
	return a, nil
}

// merge appends the unseen, valid questions of batch to existing.
func merge(existing, batch []domain.Question) ([]domain.Question, int) {
	seen := make(map[string]struct{}, len(existing)+len(batch))
	for _, q := range existing {
		seen[q.Key()] = struct{}{}
	}

	merged := make([]domain.Question, len(existing), len(existing)+len(batch))
	copy(merged, existing)
	rejected := 0
	for _, q := range batch {
		if q.Validate() != nil {
			rejected++
			continue
		}
		k := q.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, q)
	}
	return merged, rejected
}

func key(topicID string) string {
	return keyPrefix + topicID
}

func validTopicID(topicID string) error {
	if strings.TrimSpace(topicID) == "" || topicID == domain.MixedModeTopicID {
		return fmt.Errorf("%w: %q cannot hold an archive", domain.ErrUnknownTopic, topicID)
	}
	return nil
}
