package health

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func mkdir(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, rel), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
}

func TestScore_CompleteRootProject(t *testing.T) {
	root := t.TempDir()
	write(t, root, "app.py", "")
	write(t, root, "requirements.txt", "flask\n")
	mkdir(t, root, "src")
	write(t, root, "README.md", "# demo")
	write(t, root, ".github/workflows/ci.yml", "on: push")

	rep, err := Score(root)
	require.NoError(t, err)

	p := rep.Projects[RootProject]
	require.NotNil(t, p)
	assert.Equal(t, 6, p.Score)
	assert.Equal(t, 10, p.MaxScore)
	assert.Equal(t, StatusHealthy, p.Status)
	assert.Equal(t, 4, rep.RootBonus)
	assert.Equal(t, 10, rep.OverallScore)
	assert.Equal(t, 14, rep.OverallMaxScore)
	assert.Equal(t, []string{
		"Found entry point: app.py → +2",
		"Dependency file found: requirements.txt → +2",
		"Recognizable folder layout → +2",
	}, p.Findings)
	assert.Equal(t, []string{"README.md found → +2", "CI/CD config detected → +2"}, rep.RootFindings)
}

func TestScore_EmptyRepositoryRecordsZeroPointFindings(t *testing.T) {
	rep, err := Score(t.TempDir())
	require.NoError(t, err)

	p := rep.Projects[RootProject]
	assert.Equal(t, 0, p.Score)
	assert.Equal(t, StatusIncomplete, p.Status)
	assert.Equal(t, []string{
		"No entry point found → 0 points",
		"No dependency file found → 0 points",
		"No recognizable folder layout → 0 points",
	}, p.Findings)
	assert.Len(t, rep.RootFindings, 2)
	assert.Equal(t, 0, rep.OverallScore)
	assert.Equal(t, 14, rep.OverallMaxScore)
}

func TestScore_SubProjects(t *testing.T) {
	root := t.TempDir()
	write(t, root, "backend/main.py", "")
	write(t, root, "backend/pyproject.toml", "")
	write(t, root, "frontend/server.js", "")
	mkdir(t, root, "frontend/src")
	write(t, root, "docs/guide.md", "")      // no entry point
	write(t, root, ".hidden/app.py", "")     // dot directory
	write(t, root, "deep/nested/app.py", "") // not first level

	rep, err := Score(root)
	require.NoError(t, err)
	assert.Equal(t, []string{RootProject, "backend", "frontend"}, rep.ProjectNames())

	// backend and frontend are layout dirs of the root
	assert.Equal(t, 2, rep.Projects[RootProject].Score)
	assert.Equal(t, 4, rep.Projects["backend"].Score)
	assert.Equal(t, 4, rep.Projects["frontend"].Score)
	assert.Equal(t, StatusHealthy, rep.Projects["backend"].Status)
	assert.Equal(t, 10, rep.OverallScore)
	assert.Equal(t, 10*3+4, rep.OverallMaxScore)
}

func TestScore_Monotonicity(t *testing.T) {
	root := t.TempDir()
	base := func() int {
		rep, err := Score(root)
		require.NoError(t, err)
		return rep.Projects[RootProject].Score
	}

	s0 := base()
	write(t, root, "index.js", "")
	s1 := base()
	assert.Equal(t, s0+CheckPoints, s1)

	write(t, root, "package.json", "{}")
	s2 := base()
	assert.Equal(t, s1+CheckPoints, s2)

	// a second manifest adds nothing more
	write(t, root, "poetry.lock", "")
	assert.Equal(t, s2, base())

	mkdir(t, root, "services")
	s3 := base()
	assert.Equal(t, s2+CheckPoints, s3)
	assert.LessOrEqual(t, s3, ProjectMaxScore)
}

func TestScore_ReadmeIsCaseInsensitiveAndLayoutNeedsDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, root, "readme.MD", "")
	write(t, root, "src", "a file, not a directory")

	rep, err := Score(root)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.RootBonus)
	assert.Contains(t, rep.RootFindings, "readme.MD found → +2")
	assert.Equal(t, 0, rep.Projects[RootProject].Score)
}

func TestScore_MissingRoot(t *testing.T) {
	_, err := Score(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
