// Package catalog holds the fixed set of quiz topics.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"mastery-quiz/internal/domain"
)

const (
	// MixedTitle is the label reported for cross-topic results.
	MixedTitle = "Mixed Mode"
	// MixedSessionTitle is shown for a running cross-topic session.
	MixedSessionTitle = "Mixed Simulation"
)

//go:embed topics.yaml
var topicsYAML []byte

// Catalog is an ordered, read-only topic list.
type Catalog struct {
	topics []domain.Topic
	byID   map[string]domain.Topic
}

// Default returns the built-in catalog. It panics if the embedded data is malformed.
func Default() *Catalog {
	c, err := Parse(topicsYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded topics: %v", err))
	}
	return c
}

// Parse builds a catalog from a YAML topic list.
func Parse(data []byte) (*Catalog, error) {
	var topics []domain.Topic
	if err := yaml.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return New(topics)
}

// New builds a catalog, rejecting blank or duplicate IDs.
func New(topics []domain.Topic) (*Catalog, error) {
	c := &Catalog{
		topics: make([]domain.Topic, 0, len(topics)),
		byID:   make(map[string]domain.Topic, len(topics)),
	}
	for _, t := range topics {
		if t.ID == "" || t.ID == domain.MixedModeTopicID {
			return nil, fmt.Errorf("invalid topic id %q", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		c.topics = append(c.topics, t)
		c.byID[t.ID] = t
	}
	return c, nil
}

// Topics returns the topics in catalog order.
func (c *Catalog) Topics() []domain.Topic {
	out := make([]domain.Topic, len(c.topics))
	copy(out, c.topics)
	return out
}

func (c *Catalog) Lookup(id string) (domain.Topic, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Title resolves a topic key for display. The mixed sentinel maps to MixedTitle
// and unknown keys are returned unchanged.
func (c *Catalog) Title(id string) string {
	if id == domain.MixedModeTopicID {
		return MixedTitle
	}
	if t, ok := c.byID[id]; ok {
		return t.Title
	}
	return id
}
