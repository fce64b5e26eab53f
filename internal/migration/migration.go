// Package migration applies versioned, run-once maintenance steps to the
// persisted quiz state.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"mastery-quiz/internal/domain"
	"mastery-quiz/internal/kv"
)

const versionKey = "meta:schema_version"

// Step is one schema version. Apply must be safe to re-run if the process
// dies before the version is recorded.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context) error
}

// HistoryResetter clears the seen-history.
type HistoryResetter interface {
	Reset(ctx context.Context) error
}

// ArchiveClearer lists and clears topic archives.
type ArchiveClearer interface {
	Topics(ctx context.Context) ([]string, error)
	ClearArchive(ctx context.Context, topicID string) error
}

// DefaultSteps returns the built-in migration list.
//
// Version 1 switches seen tracking from question IDs to normalized text: it
// drops the old history and every archive, including archives of topics no
// longer in the catalog.
func DefaultSteps(history HistoryResetter, archives ArchiveClearer, topics []domain.Topic) []Step {
	return []Step{
		{
			Version: 1,
			Name:    "text-based seen tracking",
			Apply: func(ctx context.Context) error {
				if err := history.Reset(ctx); err != nil {
					return err
				}
				ids := make(map[string]struct{}, len(topics))
				for _, t := range topics {
					ids[t.ID] = struct{}{}
				}
				archived, err := archives.Topics(ctx)
				if err != nil {
					return err
				}
				for _, id := range archived {
					ids[id] = struct{}{}
				}
				for id := range ids {
					if err := archives.ClearArchive(ctx, id); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// Runner records the applied version under a single key.
type Runner struct {
	kv     kv.Store
	steps  []Step
	logger *slog.Logger
}

func NewRunner(store kv.Store, steps []Step, logger *slog.Logger) *Runner {
	sorted := append([]Step(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{kv: store, steps: sorted, logger: logger}
}

// Version returns the last applied version, 0 when none.
// An unreadable marker is an error: guessing 0 would repeat destructive steps.
func (r *Runner) Version(ctx context.Context) (int, error) {
	raw, err := r.kv.Get(ctx, versionKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}

// Run applies every step newer than the recorded version, in order, and
// returns the versions applied.
func (r *Runner) Run(ctx context.Context) ([]int, error) {
	current, err := r.Version(ctx)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, step := range r.steps {
		if step.Version <= current {
			continue
		}
		if err := step.Apply(ctx); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", step.Version, step.Name, err)
		}
		if err := r.kv.Put(ctx, versionKey, []byte(strconv.Itoa(step.Version))); err != nil {
			return applied, fmt.Errorf("record schema version %d: %w", step.Version, err)
		}
		r.logger.Info("migration applied", "version", step.Version, "name", step.Name)
		applied = append(applied, step.Version)
		current = step.Version
	}
	return applied, nil
}
