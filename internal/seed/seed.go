// Package seed tops up topic archives from built-in question templates,
// without any network dependency.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"mastery-quiz/internal/domain"
)

// DefaultTarget is the archive size a topic is topped up towards.
const DefaultTarget = 100

//go:embed templates.yaml
var templatesYAML []byte

type template struct {
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	CorrectAnswer int      `yaml:"correctAnswer"`
	Explanation   string   `yaml:"explanation"`
	CodeSnippet   string   `yaml:"codeSnippet"`
}

// Archive is the slice of the question store the seeder needs.
type Archive interface {
	Archive(ctx context.Context, topicID string) ([]domain.Question, error)
	SaveQuestions(ctx context.Context, topicID string, questions []domain.Question) (int, error)
}

// Seeder merges deterministic template batches into every topic below target.
type Seeder struct {
	archive   Archive
	topics    []domain.Topic
	templates map[string][]template
	target    int
	logger    *slog.Logger
}

func NewSeeder(archive Archive, topics []domain.Topic, target int, logger *slog.Logger) (*Seeder, error) {
	templates, err := parseTemplates(templatesYAML)
	if err != nil {
		return nil, err
	}
	if target <= 0 {
		target = DefaultTarget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{archive: archive, topics: topics, templates: templates, target: target, logger: logger}, nil
}

func parseTemplates(data []byte) (map[string][]template, error) {
	var templates map[string][]template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse seed templates: %w", err)
	}
	return templates, nil
}

// Batch returns target questions for topicID by cycling its templates.
// Repeated templates share text, so a merge keeps only the distinct ones.
func (s *Seeder) Batch(topicID string) []domain.Question {
	tpl := s.templates[topicID]
	if len(tpl) == 0 {
		return nil
	}
	batch := make([]domain.Question, s.target)
	for i := range batch {
		t := tpl[i%len(tpl)]
		batch[i] = domain.Question{
			ID:            fmt.Sprintf("%s-gen-%d", topicID, i),
			Topic:         topicID,
			Text:          t.Text,
			Options:       append([]string(nil), t.Options...),
			CorrectAnswer: t.CorrectAnswer,
			Explanation:   t.Explanation,
			CodeSnippet:   t.CodeSnippet,
		}
	}
	return batch
}

// Run tops up each topic in catalog order and returns how many questions
// were added. progress, when set, is called once per topic below target
// before its batch is merged.
func (s *Seeder) Run(ctx context.Context, progress func(domain.SyncProgress)) (int, error) {
	total := 0
	for _, topic := range s.topics {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		existing, err := s.archive.Archive(ctx, topic.ID)
		if err != nil {
			return total, err
		}
		if len(existing) >= s.target {
			continue
		}
		batch := s.Batch(topic.ID)
		if len(batch) == 0 {
			s.logger.Debug("no seed templates for topic", "topic", topic.ID)
			continue
		}
		if progress != nil {
			progress(domain.SyncProgress{Current: len(existing), Target: s.target, Topic: topic.Title})
		}
		added, err := s.archive.SaveQuestions(ctx, topic.ID, batch)
		if err != nil {
			return total, err
		}
		total += added
	}
	s.logger.Info("seed complete", "topics", len(s.topics), "added", total)
	return total, nil
}
