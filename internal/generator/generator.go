package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mastery-quiz/internal/domain"
)

const systemPrompt = "You write multiple-choice questions for AI engineering practice. Reply with JSON only."

// BatchGenerator turns provider replies into validated questions. It never
// returns an error: every failure is logged and yields an empty batch, and
// nothing is persisted here.
type BatchGenerator struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
	newID    func() string
}

func NewBatchGenerator(provider Provider, timeout time.Duration, logger *slog.Logger) *BatchGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchGenerator{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
		newID:    func() string { return uuid.NewString()[:8] },
	}
}

// GenerateBatch requests count questions for topic.
func (g *BatchGenerator) GenerateBatch(ctx context.Context, topic domain.Topic, count int) []domain.Question {
	if count <= 0 {
		return nil
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	qs, err := g.generate(ctx, topic, count)
	if err != nil {
		g.logger.Warn("question generation failed", "topic", topic.ID, "model", g.provider.ModelID(), "err", err)
		return nil
	}
	g.logger.Info("questions generated", "topic", topic.ID, "model", g.provider.ModelID(), "count", len(qs), "elapsed", time.Since(started))
	return qs
}

func (g *BatchGenerator) generate(ctx context.Context, topic domain.Topic, count int) ([]domain.Question, error) {
	raw, err := g.provider.Generate(ctx, Request{
		System: systemPrompt,
		Prompt: prompt(topic, count),
		Schema: batchSchema,
	})
	if err != nil {
		return nil, err
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var batch []domain.Question
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, &ErrInvalidResponse{Content: raw, Err: err}
	}

	out := make([]domain.Question, 0, len(batch))
	for _, q := range batch {
		q.ID = topic.ID + "-" + g.newID()
		q.Topic = topic.ID
		if err := q.Validate(); err != nil {
			g.logger.Warn("dropping generated question", "topic", topic.ID, "err", err)
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("no usable questions in %d returned", len(batch))}
	}
	return out, nil
}

func prompt(topic domain.Topic, count int) string {
	return fmt.Sprintf(`Generate exactly %d high-quality, challenging multiple-choice questions for the AI technical topic: %q. Context: %s.
- Questions must be diverse and unique.
- Ensure a mix of conceptual and practical application.
- If technical, include relevant code snippets (Python/SQL/Prompt syntax).
- Format as a JSON array.`, count, topic.Title, topic.Description)
}
