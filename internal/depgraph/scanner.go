package depgraph

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dependency is one declared dependency; ID becomes a graph node id.
type Dependency struct {
	ID    string
	Group Group
}

// Scanner extracts dependencies from one kind of manifest.
type Scanner interface {
	Name() string
	// CanScan reports whether the slash-separated relative path is handled.
	CanScan(path string) bool
	// Scan parses content. A non-nil error may come with the dependencies
	// read before the failure.
	Scan(content []byte) ([]Dependency, error)
}

// AllScanners returns the built-in scanners in match priority order.
func AllScanners() []Scanner {
	return []Scanner{NpmScanner{}, RequirementsScanner{}, KubeScanner{}}
}

// NpmScanner reads package.json dependency and devDependency keys.
type NpmScanner struct{}

func (NpmScanner) Name() string { return "npm" }

func (NpmScanner) CanScan(p string) bool { return path.Base(p) == "package.json" }

type packageJSON struct {
	Dependencies    map[string]json.RawMessage `json:"dependencies"`
	DevDependencies map[string]json.RawMessage `json:"devDependencies"`
}

func (NpmScanner) Scan(content []byte) ([]Dependency, error) {
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for k := range pkg.Dependencies {
		names[k] = struct{}{}
	}
	for k := range pkg.DevDependencies {
		names[k] = struct{}{}
	}
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	deps := make([]Dependency, 0, len(keys))
	for _, k := range keys {
		deps = append(deps, Dependency{ID: k, Group: GroupNode})
	}
	return deps, nil
}

// RequirementsScanner reads requirements.txt lines. Only "==" pins are
// stripped; other specifiers stay part of the identifier.
type RequirementsScanner struct{}

func (RequirementsScanner) Name() string { return "requirements" }

func (RequirementsScanner) CanScan(p string) bool { return path.Base(p) == "requirements.txt" }

func (RequirementsScanner) Scan(content []byte) ([]Dependency, error) {
	var deps []Dependency
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id := line
		if before, _, found := strings.Cut(line, "=="); found {
			id = strings.TrimSpace(before)
		}
		if id == "" {
			continue
		}
		deps = append(deps, Dependency{ID: id, Group: GroupPython})
	}
	return deps, nil
}

// KubeScanner reads every mapping document of a .yaml/.yml file as
// "<kind>:<metadata.name>".
type KubeScanner struct{}

const (
	defaultKind = "Resource"
	defaultName = "unknown"
)

func (KubeScanner) Name() string { return "k8s" }

func (KubeScanner) CanScan(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Scan skips documents that are not mappings. A syntax error ends the
// file; documents decoded before it are kept. Keys of any scalar type are
// accepted, so a mapping with numeric keys still counts.
func (KubeScanner) Scan(content []byte) ([]Dependency, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	var deps []Dependency
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return deps, nil
		}
		if err != nil {
			return deps, err
		}
		m := mappingOf(&doc)
		if m == nil {
			continue
		}
		kind := scalar(lookup(m, "kind"), defaultKind)
		name := defaultName
		if meta := mappingOf(lookup(m, "metadata")); meta != nil {
			name = scalar(lookup(meta, "name"), defaultName)
		}
		deps = append(deps, Dependency{ID: kind + ":" + name, Group: GroupK8s})
	}
}

// mappingOf unwraps document and alias nodes; nil when n is not a mapping.
func mappingOf(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		case yaml.MappingNode:
			return n
		default:
			return nil
		}
	}
	return nil
}

// lookup returns the value node stored under key, nil when absent.
func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		if k.Kind == yaml.ScalarNode && k.Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(n *yaml.Node, def string) string {
	if n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" || n.Value == "" {
		return def
	}
	return n.Value
}
