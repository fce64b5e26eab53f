// Package history tracks which question texts the user has already completed.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"mastery-quiz/internal/domain"
	"mastery-quiz/internal/kv"
)

const seenKey = "history:seen"

// Tracker persists the global set of normalized seen texts as a JSON array.
type Tracker struct {
	kv     kv.Store
	logger *slog.Logger
}

func NewTracker(store kv.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{kv: store, logger: logger}
}

// SeenTexts returns the seen set. Missing or corrupt state reads as empty.
func (t *Tracker) SeenTexts(ctx context.Context) (map[string]struct{}, error) {
	raw, err := t.kv.Get(ctx, seenKey)
	if errors.Is(err, kv.ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seen history: %w", err)
	}
	seen, err := decode(raw)
	if err != nil {
		t.logger.Warn("ignoring corrupt seen history", "err", err)
		return map[string]struct{}{}, nil
	}
	return seen, nil
}

// MarkAsSeen normalizes texts and adds them to the seen set.
func (t *Tracker) MarkAsSeen(ctx context.Context, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	err := t.kv.Update(ctx, seenKey, func(current []byte, found bool) ([]byte, bool, error) {
		seen := map[string]struct{}{}
		if found {
			if decoded, err := decode(current); err == nil {
				seen = decoded
			}
		}
		before := len(seen)
		for _, text := range texts {
			seen[domain.Normalize(text)] = struct{}{}
		}
		if found && len(seen) == before {
			return nil, false, nil
		}
		next, err := encode(seen)
		return next, err == nil, err
	})
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Reset clears the seen set.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.kv.Delete(ctx, seenKey); err != nil {
		return fmt.Errorf("reset seen history: %w", err)
	}
	return nil
}

// IsAllSeen reports whether every candidate text has been seen.
func (t *Tracker) IsAllSeen(ctx context.Context, texts []string) (bool, error) {
	seen, err := t.SeenTexts(ctx)
	if err != nil {
		return false, err
	}
	for _, text := range texts {
		if _, ok := seen[domain.Normalize(text)]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func decode(raw []byte) (map[string]struct{}, error) {
	var texts []string
	if err := json.Unmarshal(raw, &texts); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		seen[text] = struct{}{}
	}
	return seen, nil
}

func encode(seen map[string]struct{}) ([]byte, error) {
	texts := make([]string, 0, len(seen))
	for text := range seen {
		texts = append(texts, text)
	}
	sort.Strings(texts)
	return json.Marshal(texts)
}
