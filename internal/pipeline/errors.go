package pipeline

import (
	"errors"
	"fmt"
)

// ErrStagePanic wraps a value recovered from a panicking stage.
var ErrStagePanic = errors.New("stage panicked")

// DuplicateStageError is returned when an identifier is registered twice in
// the same registry.
type DuplicateStageError struct {
	Kind       Kind
	Identifier string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("duplicate %s stage %q", e.Kind, e.Identifier)
}

// RetrievalError is a retriever failure for a URL it claimed.
type RetrievalError struct {
	Stage string
	URL   string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retriever %s failed for %s: %v", e.Stage, e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

type ParseError struct {
	Stage string
	URL   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser %s failed for %s: %v", e.Stage, orUnknown(e.URL), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type ProcessError struct {
	Stage string
	URL   string
	Err   error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("processor %s failed for %s: %v", e.Stage, orUnknown(e.URL), e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

func orUnknown(s string) string {
	if s == "" {
		return "<unknown source>"
	}
	return s
}

// guard runs fn and turns a panic into an ErrStagePanic error.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanic, rec)
		}
	}()
	return fn()
}
