package scan

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, root, "app.py", "print('hi')")
	write(t, root, "README.md", "# demo")
	write(t, root, "LICENSE", "MIT")
	write(t, root, ".gitignore", "venv/")
	write(t, root, "Dockerfile", "FROM alpine")
	write(t, root, "notes.txt", "plain")
	write(t, root, "src/index.js", "console.log(1)")
	write(t, root, "src/logo.png", "\x89PNG")
	write(t, root, "deploy/web.yaml", "kind: Deployment")
	write(t, root, ".git/HEAD", "ref: refs/heads/main")
	write(t, root, ".github/workflows/ci.yml", "on: push")
	write(t, root, "node_modules/x/index.js", "module.exports = 1")
	write(t, root, "venv/lib/site.py", "x = 1")
	write(t, root, "pkg/__pycache__/m.py", "x = 1")
	return root
}

func TestWalk_RestrictedExcludesInfrastructure(t *testing.T) {
	root := fixture(t)
	opts := DefaultOptions()

	got := []string{}
	for e := range Walk(root, Restricted, opts) {
		got = append(got, e.Path)
		for _, dir := range opts.IgnoreDirs {
			assert.False(t, strings.HasPrefix(e.Path, dir+"/") || strings.Contains(e.Path, "/"+dir+"/"),
				"path %s lies under ignored dir %s", e.Path, dir)
		}
		assert.Contains(t, opts.AllowedTypes, e.TypeTag, "type tag of %s", e.Path)
	}
	sort.Strings(got)
	want := []string{"Dockerfile", "README.md", "app.py", "deploy/web.yaml", "src/index.js"}
	require.Equal(t, want, got)
}

func TestWalk_UnrestrictedKeepsNoiseFiles(t *testing.T) {
	root := fixture(t)

	got := ListPaths(root, DefaultOptions())
	sort.Strings(got)
	want := []string{
		".gitignore", "Dockerfile", "LICENSE", "README.md", "app.py",
		"deploy/web.yaml", "notes.txt", "src/index.js", "src/logo.png",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestWalk_IsRestartable(t *testing.T) {
	root := fixture(t)
	seq := Walk(root, Restricted, DefaultOptions())

	first := Collect(seq)
	second := Collect(seq)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestWalk_StopsEarly(t *testing.T) {
	root := fixture(t)
	n := 0
	for range Walk(root, Unrestricted, DefaultOptions()) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestWalk_OptionsOverride(t *testing.T) {
	root := fixture(t)
	opts := DefaultOptions()
	opts.AllowedTypes = []string{".txt"}
	opts.IgnoreDirs = append(opts.IgnoreDirs, "src")

	got := Collect(Walk(root, Restricted, opts))
	require.Len(t, got, 1)
	assert.Equal(t, "notes.txt", got[0].Path)
	assert.Equal(t, "txt", got[0].TypeTag)

	// the stock defaults are untouched
	assert.NotContains(t, DefaultOptions().IgnoreDirs, "src")
}

func TestClassify_CaseInsensitive(t *testing.T) {
	for _, name := range []string{"README.md", "readme.MD", "ReadMe.md"} {
		assert.Equal(t, "readme.md", Classify(name), name)
	}
	assert.Equal(t, "dockerfile", Classify("Dockerfile"))
	assert.Equal(t, "dockerfile", Classify("DOCKERFILE"))
	assert.Equal(t, "requirements.txt", Classify("Requirements.TXT"))
	assert.Equal(t, "py", Classify("src/App.PY"))
	assert.Equal(t, "md", Classify("CHANGELOG.md"))
	assert.Equal(t, "", Classify(".gitignore"))
	assert.Equal(t, "", Classify("LICENSE"))
}

func TestFileEntry_Dir(t *testing.T) {
	assert.Equal(t, ".", FileEntry{Path: "app.py"}.Dir())
	assert.Equal(t, "src/lib", FileEntry{Path: "src/lib/util.py"}.Dir())
	assert.Equal(t, "util.py", FileEntry{Path: "src/lib/util.py"}.Name())
}
