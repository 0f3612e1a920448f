package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_PerTypeInstruction(t *testing.T) {
	p := BuildPrompt("FROM alpine", "dockerfile")
	assert.Contains(t, p, "Summarize Dockerfile: base image, steps, ports, CMD.")
	assert.Contains(t, p, "FROM alpine")

	assert.Contains(t, BuildPrompt("x", "README.MD"), "project purpose")
	assert.Contains(t, BuildPrompt("x", "go"), defaultInstruction)
	assert.Contains(t, BuildPrompt("docs", HintRepo), "senior software engineer")
	assert.Contains(t, BuildPrompt("a\n\nb", HintCombine), "partial summaries")
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	s := Wrap(Func(func(ctx context.Context, content, typeHint string) (string, error) {
		calls++
		return "", NewPermanentError(errors.New("quota exhausted"))
	}), Retry(5, time.Millisecond))

	_, err := s.Summarize(context.Background(), "x", "py")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversFromTransientError(t *testing.T) {
	calls := 0
	s := Wrap(Func(func(ctx context.Context, content, typeHint string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	}), Retry(3, time.Millisecond))

	out, err := s.Summarize(context.Background(), "x", "py")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	s := Retry(2, time.Millisecond)(Func(func(ctx context.Context, content, typeHint string) (string, error) {
		calls++
		return "", errors.New("boom")
	}))
	_, err := s.Summarize(context.Background(), "x", "py")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 2, calls)
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	fake := NewFakeSummarizer()
	assert.Same(t, fake, RateLimit(0, 0)(fake))
}

func TestRateLimit_HonorsContext(t *testing.T) {
	s := RateLimit(0.001, 1)(NewFakeSummarizer())
	defer s.(*rateLimited).Close()

	_, err := s.Summarize(context.Background(), "a", "py")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Summarize(ctx, "b", "py")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimit_CloseStopsLimiter(t *testing.T) {
	s := RateLimit(0.001, 1)(NewFakeSummarizer())
	c, ok := s.(io.Closer)
	require.True(t, ok)

	_, err := s.Summarize(context.Background(), "a", "py")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// the bucket is empty, so only the stop signal can release the call
	_, err = s.Summarize(context.Background(), "b", "py")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeSummarizer_CountsConcurrentCalls(t *testing.T) {
	f := NewFakeSummarizer()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.Summarize(context.Background(), "print(1)", "py")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, f.Calls())
	assert.Equal(t, 20, f.CallsFor("py"))
	assert.Equal(t, 0, f.CallsFor("js"))

	out, err := f.Summarize(context.Background(), strings.Repeat("x", 100), "js")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[js] 100 chars: "))
}

func TestSummarizationError_Unwraps(t *testing.T) {
	base := errors.New("quota")
	err := error(&SummarizationError{TypeHint: "py", Err: base})
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "py")
}
