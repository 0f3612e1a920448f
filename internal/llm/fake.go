package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// FakeSummarizer returns deterministic summaries for offline runs and tests.
// It records how many times it was called, per type hint.
type FakeSummarizer struct {
	// Fail, when set, decides whether a call fails.
	Fail func(content, typeHint string) error

	calls  atomic.Int64
	mu     sync.Mutex
	byHint map[string]int
}

func NewFakeSummarizer() *FakeSummarizer { return &FakeSummarizer{} }

func (f *FakeSummarizer) Name() string { return "FakeLLM" }

func (f *FakeSummarizer) Summarize(ctx context.Context, content, typeHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.calls.Add(1)
	f.mu.Lock()
	if f.byHint == nil {
		f.byHint = map[string]int{}
	}
	f.byHint[typeHint]++
	f.mu.Unlock()

	if f.Fail != nil {
		if err := f.Fail(content, typeHint); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("[%s] %s", typeHint, digest(content)), nil
}

// Calls returns the total number of Summarize calls.
func (f *FakeSummarizer) Calls() int { return int(f.calls.Load()) }

// CallsFor returns the number of calls made with typeHint.
func (f *FakeSummarizer) CallsFor(typeHint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHint[typeHint]
}

// digest keeps the first line, shortened, so outputs stay readable.
func digest(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	if r := []rune(line); len(r) > 60 {
		line = string(r[:60]) + "..."
	}
	return fmt.Sprintf("%d chars: %s", len([]rune(content)), line)
}
