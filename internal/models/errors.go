package models

import "fmt"

// ExternalServiceError wraps a failure of the language-model or embedding service.
// The core never retries these; they are returned to the caller as is.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
