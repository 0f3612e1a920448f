// Package depgraph links a synthetic project node to every dependency
// declared by the recognized manifests of a repository.
package depgraph

import (
	"fmt"
	"log/slog"
	"os"

	"codeessence/internal/scan"
)

// ProjectID is the id of the node every edge starts from.
const ProjectID = "project"

type Group string

const (
	GroupRoot   Group = "root"
	GroupNode   Group = "node"
	GroupPython Group = "python"
	GroupK8s    Group = "k8s"
)

type Node struct {
	ID    string `json:"id"`
	Group Group  `json:"group"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// UnitFailure records a manifest whose contribution was dropped, fully or
// partly.
type UnitFailure struct {
	Path    string `json:"path"`
	Scanner string `json:"scanner"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// ManifestParseError reports unreadable or malformed manifest content.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("depgraph: parse %s: %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error { return e.Err }

// Graph node ids are unique and every edge references existing nodes.
type Graph struct {
	Nodes    []Node        `json:"nodes"`
	Edges    []Edge        `json:"edges"`
	Failures []UnitFailure `json:"failures,omitempty"`

	index map[string]int
}

func newGraph() *Graph {
	g := &Graph{Nodes: []Node{}, Edges: []Edge{}, index: map[string]int{}}
	g.addNode(ProjectID, GroupRoot)
	return g
}

// addNode inserts id unless present; the first group seen wins.
func (g *Graph) addNode(id string, group Group) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{ID: id, Group: group})
}

func (g *Graph) link(dep Dependency) {
	g.addNode(dep.ID, dep.Group)
	g.Edges = append(g.Edges, Edge{Source: ProjectID, Target: dep.ID})
}

// Node returns the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Builder walks a tree and feeds every file to the first scanner that
// accepts it.
type Builder struct {
	Scanners []Scanner
	Options  scan.Options
	Logger   *slog.Logger
}

func NewBuilder(opts scan.Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{Scanners: AllScanners(), Options: opts, Logger: logger}
}

// Build walks root in Unrestricted mode. Per-manifest failures are kept in
// Graph.Failures and never stop the walk.
func (b *Builder) Build(root string) (*Graph, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("depgraph: %w", err)
	}
	g := newGraph()
	for entry := range scan.Walk(root, scan.Unrestricted, b.Options) {
		sc := b.scannerFor(entry.Path)
		if sc == nil {
			continue
		}
		deps, err := b.scanFile(sc, entry)
		for _, d := range deps {
			g.link(d)
		}
		if err != nil {
			b.Logger.Debug("depgraph: manifest skipped", "path", entry.Path, "scanner", sc.Name(), "error", err)
			g.Failures = append(g.Failures, UnitFailure{Path: entry.Path, Scanner: sc.Name(), Err: err, Message: err.Error()})
		}
	}
	return g, nil
}

func (b *Builder) scanFile(sc Scanner, entry scan.FileEntry) ([]Dependency, error) {
	content, err := os.ReadFile(entry.AbsPath)
	if err != nil {
		return nil, &ManifestParseError{Path: entry.Path, Err: err}
	}
	deps, err := sc.Scan(content)
	if err != nil {
		return deps, &ManifestParseError{Path: entry.Path, Err: err}
	}
	return deps, nil
}

func (b *Builder) scannerFor(path string) Scanner {
	for _, sc := range b.Scanners {
		if sc.CanScan(path) {
			return sc
		}
	}
	return nil
}

// Build is shorthand for NewBuilder(opts, nil).Build(root).
func Build(root string, opts scan.Options) (*Graph, error) {
	return NewBuilder(opts, nil).Build(root)
}
