package domain

// TargetKind distinguishes single-topic from cross-topic sessions.
type TargetKind int

const (
	TargetSingle TargetKind = iota
	TargetMixed
)

// Target selects the question pool for a session.
// Build one with Single or Mixed.
type Target struct {
	kind    TargetKind
	topicID string
}

// Single targets one topic archive.
func Single(topicID string) Target {
	return Target{kind: TargetSingle, topicID: topicID}
}

// Mixed targets the union of all topic archives.
func Mixed() Target {
	return Target{kind: TargetMixed}
}

// ParseTarget maps a wire topic key to a Target; the mixed sentinel yields Mixed.
func ParseTarget(topicID string) Target {
	if topicID == MixedModeTopicID {
		return Mixed()
	}
	return Single(topicID)
}

func (t Target) Kind() TargetKind { return t.kind }

// TopicID returns the topic key, or MixedModeTopicID for mixed targets.
func (t Target) TopicID() string {
	if t.kind == TargetMixed {
		return MixedModeTopicID
	}
	return t.topicID
}

func (t Target) String() string { return t.TopicID() }
