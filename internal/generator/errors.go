package generator

import (
	"encoding/json"
	"fmt"
)

// ErrInvalidResponse indicates the provider returned content that does not
// match the question schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid generator response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down, unconfigured or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("question provider unavailable: %v", e.Err)
	}
	return "question provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }
