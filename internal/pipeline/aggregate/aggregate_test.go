package aggregate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeessence/internal/cache/memory"
	"codeessence/internal/cache/summary"
	"codeessence/internal/llm"
	"codeessence/internal/scan"
	"codeessence/internal/types"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func repoFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, root, "app.py", "from flask import Flask\napp = Flask(__name__)\n")
	write(t, root, "README.md", "# Demo\nA demo service.\n")
	write(t, root, "src/index.js", "console.log('hi')\n")
	write(t, root, "src/util.js", "export const add = (a, b) => a + b\n")
	write(t, root, "docs/notes.txt", "not admitted\n")
	write(t, root, "node_modules/dep/index.js", "module.exports = {}\n")
	return root
}

func newCache(t *testing.T) *summary.Cache {
	t.Helper()
	store, err := memory.NewStore(128)
	require.NoError(t, err)
	return summary.New(store, nil)
}

func TestAggregate_FileGranularity(t *testing.T) {
	root := repoFixture(t)
	fake := llm.NewFakeSummarizer()
	a := New(fake, newCache(t), DefaultOptions(), nil)

	res, err := a.Aggregate(context.Background(), "github.com/acme/app", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Files, 4)
	for _, p := range []string{"app.py", "README.md", "src/index.js", "src/util.js"} {
		assert.Contains(t, res.Files, p)
	}
	assert.True(t, strings.HasPrefix(res.Files["app.py"], "[py] "))
	assert.True(t, strings.HasPrefix(res.Files["README.md"], "[readme.md] "))
	assert.Equal(t, res.Files, res.Summaries())
}

func TestAggregate_FolderGranularity(t *testing.T) {
	root := repoFixture(t)
	a := New(llm.NewFakeSummarizer(), newCache(t), DefaultOptions(), nil)

	res, err := a.Aggregate(context.Background(), "github.com/acme/app", root, types.GranularityFolder)
	require.NoError(t, err)
	require.Len(t, res.Folders, 2, "docs holds no admitted file and must be omitted")
	assert.ElementsMatch(t, []string{"app.py", "README.md"}, keys(res.Folders["."]))
	assert.ElementsMatch(t, []string{"index.js", "util.js"}, keys(res.Folders["src"]))
}

func TestAggregate_CacheIdempotence(t *testing.T) {
	root := repoFixture(t)
	fake := llm.NewFakeSummarizer()
	a := New(fake, newCache(t), DefaultOptions(), nil)
	ctx := context.Background()

	first, err := a.Aggregate(ctx, "github.com/acme/app", root, types.GranularityFile)
	require.NoError(t, err)
	calls := fake.Calls()
	require.Equal(t, 4, calls)

	second, err := a.Aggregate(ctx, "github.com/acme/app", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Equal(t, calls, fake.Calls(), "second run must be served from cache")
	assert.Equal(t, first.Files, second.Files)

	// a different repository identity is a different key
	_, err = a.Aggregate(ctx, "github.com/acme/other", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Equal(t, 2*calls, fake.Calls())
}

func TestAggregate_ConcurrentRunsShareOneSummarizerCall(t *testing.T) {
	root := t.TempDir()
	write(t, root, "app.py", "print(1)\n")

	var (
		mu    sync.Mutex
		calls int
		gate  = make(chan struct{})
	)
	s := llm.Func(func(ctx context.Context, content, typeHint string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-gate
		return "summary", nil
	})
	a := New(s, newCache(t), DefaultOptions(), nil)

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := a.Aggregate(context.Background(), "repo", root, types.GranularityFile)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, calls, 4)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "summary", res.Files["app.py"])
	}
	// once everything settled the key is cached
	before := calls
	_, err := a.Aggregate(context.Background(), "repo", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Equal(t, before, calls)
}

func TestAggregate_SummarizerFailureIsLocal(t *testing.T) {
	root := repoFixture(t)
	fake := llm.NewFakeSummarizer()
	fake.Fail = func(content, typeHint string) error {
		if typeHint == "py" {
			return errors.New("quota exceeded")
		}
		return nil
	}
	cache := newCache(t)
	a := New(fake, cache, DefaultOptions(), nil)

	res, err := a.Aggregate(context.Background(), "repo", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Equal(t, "[FAILED SUMMARY] app.py", res.Files["app.py"])
	assert.Len(t, res.Files, 4)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "app.py", res.Failures[0].Path)
	var se *llm.SummarizationError
	require.ErrorAs(t, res.Failures[0].Err, &se)
	assert.Equal(t, "py", se.TypeHint)

	_, ok := cache.Get(context.Background(), "repo", "app.py", types.GranularityFile)
	assert.False(t, ok, "placeholders are never cached")
}

func TestAggregate_BinaryFileIsSkipped(t *testing.T) {
	root := t.TempDir()
	write(t, root, "ok.py", "x = 1\n")
	write(t, root, "blob.py", "a\x00b")
	a := New(llm.NewFakeSummarizer(), newCache(t), DefaultOptions(), nil)

	res, err := a.Aggregate(context.Background(), "repo", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Contains(t, res.Files, "ok.py")
	assert.NotContains(t, res.Files, "blob.py")
	require.Len(t, res.Failures, 1)
	var fe *scan.FileAccessError
	assert.ErrorAs(t, res.Failures[0].Err, &fe)
}

func TestAggregate_LargeFileIsChunkedAndReduced(t *testing.T) {
	root := t.TempDir()
	write(t, root, "big.py", strings.Repeat("print('line')\n", 400))
	fake := llm.NewFakeSummarizer()
	opts := DefaultOptions()
	opts.ChunkSize = 1000
	opts.ChunkOverlap = 100
	a := New(fake, newCache(t), opts, nil)

	res, err := a.Aggregate(context.Background(), "repo", root, types.GranularityFile)
	require.NoError(t, err)
	assert.Greater(t, fake.CallsFor("py"), 1)
	assert.Equal(t, 1, fake.CallsFor(llm.HintCombine))
	assert.True(t, strings.HasPrefix(res.Files["big.py"], "[combine] "))
}

func TestAggregate_RepoGranularity(t *testing.T) {
	root := repoFixture(t)
	fake := llm.NewFakeSummarizer()
	cache := newCache(t)
	a := New(fake, cache, DefaultOptions(), nil)
	ctx := context.Background()

	res, err := a.Aggregate(ctx, "repo", root, types.GranularityRepo)
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Repo, "[repo] "))
	assert.Equal(t, 1, fake.Calls())

	cached, ok := cache.Get(ctx, "repo", summary.RepoSentinel, types.GranularityRepo)
	require.True(t, ok)
	assert.Equal(t, res.Repo, cached)

	again, err := a.Aggregate(ctx, "repo", root, types.GranularityRepo)
	require.NoError(t, err)
	assert.Equal(t, res.Repo, again.Repo)
	assert.Equal(t, 1, fake.Calls())
}

func TestAggregate_RepoInputIsBounded(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", strings.Repeat("é", 3000))
	write(t, root, "b.py", strings.Repeat("x", 3000))

	var seen []string
	var mu sync.Mutex
	s := llm.Func(func(ctx context.Context, content, typeHint string) (string, error) {
		mu.Lock()
		seen = append(seen, content)
		mu.Unlock()
		return "ok", nil
	})
	opts := DefaultOptions()
	opts.MaxRepoInputBytes = 1001
	a := New(s, newCache(t), opts, nil)

	res, err := a.Aggregate(context.Background(), "repo", root, types.GranularityRepo)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, "ok", res.Repo)

	total := 0
	for _, c := range seen {
		if !strings.Contains(c, "x") {
			total += len(c)
		}
		assert.NotContains(t, c, "x", "content past the bound must not be sent")
	}
	assert.LessOrEqual(t, total, 1001+len(llm.BuildPrompt("", llm.HintRepo)))
}

func TestAggregate_EmptyRepository(t *testing.T) {
	fake := llm.NewFakeSummarizer()
	a := New(fake, newCache(t), DefaultOptions(), nil)

	res, err := a.Aggregate(context.Background(), "repo", t.TempDir(), types.GranularityRepo)
	require.NoError(t, err)
	assert.Equal(t, "", res.Repo)
	assert.Zero(t, fake.Calls())
}

func TestAggregate_RejectsInvalidInput(t *testing.T) {
	a := New(llm.NewFakeSummarizer(), nil, DefaultOptions(), nil)
	_, err := a.Aggregate(context.Background(), "repo", t.TempDir(), types.Granularity("module"))
	assert.Error(t, err)
	_, err = a.Aggregate(context.Background(), "repo", filepath.Join(t.TempDir(), "missing"), types.GranularityFile)
	assert.Error(t, err)
}

func TestTruncateBytes_RespectsRuneBoundary(t *testing.T) {
	assert.Equal(t, "ab", truncateBytes("abé", 3))
	assert.Equal(t, "abé", truncateBytes("abé", 4))
	assert.Equal(t, "", truncateBytes("abc", 0))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestAggregate_CancelledCallerDoesNotFailSharedUnit(t *testing.T) {
	root := t.TempDir()
	write(t, root, "app.py", "print('hi')\n")

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	blocking := llm.Func(func(ctx context.Context, content, typeHint string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(entered)
		select {
		case <-release:
			return "summary of " + typeHint, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	a := New(blocking, newCache(t), DefaultOptions(), nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := a.Aggregate(ctxA, "repo", root, types.GranularityFile)
		errA <- err
	}()
	<-entered
	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	resB := make(chan *Result, 1)
	go func() {
		res, err := a.Aggregate(context.Background(), "repo", root, types.GranularityFile)
		assert.NoError(t, err)
		resB <- res
	}()
	close(release)

	res := <-resB
	require.NotNil(t, res)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "summary of py", res.Files["app.py"])
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}
