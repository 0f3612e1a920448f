// Package health scores how complete and conventionally structured the
// projects inside a repository checkout look.
package health

import (
	"fmt"
	"sort"
	"strings"

	"codeessence/internal/safeio"
)

const (
	CheckPoints     = 2
	ProjectMaxScore = 10
	BonusMaxScore   = 4

	// RootProject names the project formed by the repository root.
	RootProject = "root"
)

type Status string

const (
	StatusHealthy    Status = "Healthy"
	StatusIncomplete Status = "Incomplete"
	StatusBroken     Status = "Broken"
)

var (
	EntryPoints = []string{"app.py", "main.py", "index.js", "server.js"}
	Manifests   = []string{"requirements.txt", "pyproject.toml", "Pipfile", "package.json", "poetry.lock"}
	LayoutDirs  = []string{"src", "app", "backend", "frontend", "services"}
)

// CIDir is the directory whose presence at the root earns the CI bonus.
const CIDir = ".github"

type Project struct {
	Findings []string `json:"details"`
	Score    int      `json:"score"`
	MaxScore int      `json:"max_score"`
	Status   Status   `json:"status"`
}

type Report struct {
	OverallScore    int                 `json:"overall_repo_score"`
	OverallMaxScore int                 `json:"overall_repo_max_score"`
	Projects        map[string]*Project `json:"projects"`
	// RootFindings lists the root-only bonus checks.
	RootFindings []string `json:"root_details"`
	RootBonus    int      `json:"root_bonus"`
}

// Score inspects root and every first-level, non-dot directory that holds
// an entry point. Per project the entry point, manifest and layout checks
// award CheckPoints each; the README and CI bonuses only count toward the
// overall totals.
func Score(root string) (*Report, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, fmt.Errorf("health: open %s: %w", root, err)
	}
	top, err := listDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("health: read %s: %w", root, err)
	}

	rep := &Report{Projects: map[string]*Project{}}
	rep.Projects[RootProject] = scoreProject(top, StatusIncomplete)

	for _, name := range top.dirs {
		if strings.HasPrefix(name, ".") {
			continue
		}
		sub, err := listDir(fsys, name)
		if err != nil || sub.firstFile(EntryPoints) == "" {
			continue
		}
		key := name
		if key == RootProject {
			key = "./" + name
		}
		rep.Projects[key] = scoreProject(sub, StatusBroken)
	}

	if readme := top.readme(); readme != "" {
		rep.RootFindings = append(rep.RootFindings, fmt.Sprintf("%s found → +%d", readme, CheckPoints))
		rep.RootBonus += CheckPoints
	} else {
		rep.RootFindings = append(rep.RootFindings, "No README.md found → 0 points")
	}
	if top.hasDir(CIDir) {
		rep.RootFindings = append(rep.RootFindings, fmt.Sprintf("CI/CD config detected → +%d", CheckPoints))
		rep.RootBonus += CheckPoints
	} else {
		rep.RootFindings = append(rep.RootFindings, "No CI/CD config detected → 0 points")
	}

	for _, p := range rep.Projects {
		rep.OverallScore += p.Score
		rep.OverallMaxScore += p.MaxScore
	}
	rep.OverallScore += rep.RootBonus
	rep.OverallMaxScore += BonusMaxScore
	return rep, nil
}

// ProjectNames returns the scored project names, root first.
func (r *Report) ProjectNames() []string {
	names := make([]string, 0, len(r.Projects))
	for name := range r.Projects {
		if name != RootProject {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := r.Projects[RootProject]; ok {
		names = append([]string{RootProject}, names...)
	}
	return names
}

func scoreProject(l listing, missingStatus Status) *Project {
	p := &Project{MaxScore: ProjectMaxScore, Status: missingStatus}

	if entry := l.firstFile(EntryPoints); entry != "" {
		p.Findings = append(p.Findings, fmt.Sprintf("Found entry point: %s → +%d", entry, CheckPoints))
		p.Score += CheckPoints
		p.Status = StatusHealthy
	} else {
		p.Findings = append(p.Findings, "No entry point found → 0 points")
	}

	if found := l.files(Manifests); len(found) > 0 {
		p.Findings = append(p.Findings, fmt.Sprintf("Dependency file found: %s → +%d", strings.Join(found, ", "), CheckPoints))
		p.Score += CheckPoints
	} else {
		p.Findings = append(p.Findings, "No dependency file found → 0 points")
	}

	if l.anyDir(LayoutDirs) {
		p.Findings = append(p.Findings, fmt.Sprintf("Recognizable folder layout → +%d", CheckPoints))
		p.Score += CheckPoints
	} else {
		p.Findings = append(p.Findings, "No recognizable folder layout → 0 points")
	}
	return p
}

// listing is the sorted, single-level content of one directory.
type listing struct {
	fileSet map[string]struct{}
	dirSet  map[string]struct{}
	names   []string
	dirs    []string
}

// listDir lists dir relative to the root of fsys. Symlinks leading outside
// the root are rejected.
func listDir(fsys *safeio.SafeFS, dir string) (listing, error) {
	entries, err := fsys.SafeReadDir(dir)
	if err != nil {
		return listing{}, err
	}
	l := listing{fileSet: map[string]struct{}{}, dirSet: map[string]struct{}{}}
	for _, e := range entries {
		if e.IsDir() {
			l.dirSet[e.Name()] = struct{}{}
			l.dirs = append(l.dirs, e.Name())
			continue
		}
		l.fileSet[e.Name()] = struct{}{}
		l.names = append(l.names, e.Name())
	}
	return l, nil
}

func (l listing) firstFile(candidates []string) string {
	for _, c := range candidates {
		if _, ok := l.fileSet[c]; ok {
			return c
		}
	}
	return ""
}

func (l listing) files(candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if _, ok := l.fileSet[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (l listing) hasDir(name string) bool {
	_, ok := l.dirSet[name]
	return ok
}

func (l listing) anyDir(candidates []string) bool {
	for _, c := range candidates {
		if l.hasDir(c) {
			return true
		}
	}
	return false
}

func (l listing) readme() string {
	for _, n := range l.names {
		if strings.EqualFold(n, "readme.md") {
			return n
		}
	}
	return ""
}
