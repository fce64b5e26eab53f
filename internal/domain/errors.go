package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session is not active (never started or already completed).
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrNoQuestions indicates neither the archive nor the generator could supply questions.
	ErrNoQuestions = errors.New("no questions available")
	// ErrInvalidResult indicates a session result violates score/total bounds.
	ErrInvalidResult = errors.New("invalid session result")
	// ErrInvalidQuestion indicates a question record is malformed.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrUnknownTopic indicates a topic key missing from the catalog.
	ErrUnknownTopic = errors.New("unknown topic")
)
