// Package llm defines the text summarizer used by the pipeline and its
// Gemini-backed and offline implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Summarizer turns content into a short textual summary. typeHint is a
// file type tag ("py", "dockerfile", ...) or one of the reduce hints.
type Summarizer interface {
	Summarize(ctx context.Context, content, typeHint string) (string, error)
}

// Func adapts a plain function to Summarizer.
type Func func(ctx context.Context, content, typeHint string) (string, error)

func (f Func) Summarize(ctx context.Context, content, typeHint string) (string, error) {
	return f(ctx, content, typeHint)
}

var ErrEmptyResponse = errors.New("llm: empty response from model")

// SummarizationError is a failed summarizer call for one unit.
type SummarizationError struct {
	TypeHint string
	Err      error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("llm: summarize %s: %v", e.TypeHint, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying will not fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
