package scan

import (
	"path/filepath"
	"strings"
)

// Options controls which entries a walk yields. Values are copied by the
// walker, so callers can derive variants from DefaultOptions freely.
type Options struct {
	// Directory base names that are never descended into (case-insensitive).
	IgnoreDirs []string
	// File base names suppressed in Restricted mode (case-insensitive).
	IgnoreFiles []string
	// Type tags admitted in Restricted mode (see Classify).
	AllowedTypes []string
}

// DefaultOptions returns the stock filter set:
//
//	dirs:  .git .github __pycache__ node_modules .venv venv
//	files: .gitignore .gitattributes LICENSE
//	types: py js ts jsx tsx sql yaml yml dockerfile requirements.txt readme.md
func DefaultOptions() Options {
	return Options{
		IgnoreDirs:  []string{".git", ".github", "__pycache__", "node_modules", ".venv", "venv"},
		IgnoreFiles: []string{".gitignore", ".gitattributes", "LICENSE"},
		AllowedTypes: []string{
			"py", "js", "ts", "jsx", "tsx", "sql", "yaml", "yml",
			"dockerfile", "requirements.txt", "readme.md",
		},
	}
}

// namedTypes are file names that classify as themselves rather than by extension.
var namedTypes = map[string]struct{}{
	"dockerfile":       {},
	"makefile":         {},
	"requirements.txt": {},
	"readme.md":        {},
	"package.json":     {},
}

// Classify derives the type tag of a file name. Matching is
// case-insensitive and an exact file name match wins over the extension:
// "Dockerfile" -> "dockerfile", "README.md" -> "readme.md", "App.PY" -> "py".
func Classify(name string) string {
	base := strings.ToLower(filepath.Base(name))
	if _, ok := namedTypes[base]; ok {
		return base
	}
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return ""
	}
	return strings.TrimPrefix(ext, ".")
}

// filter is the normalized, lookup-friendly form of Options.
type filter struct {
	dirs    map[string]struct{}
	files   map[string]struct{}
	allowed map[string]struct{}
}

func newFilter(opts Options) filter {
	return filter{
		dirs:    lowerSet(opts.IgnoreDirs),
		files:   lowerSet(opts.IgnoreFiles),
		allowed: typeSet(opts.AllowedTypes),
	}
}

func (f filter) skipDir(name string) bool {
	_, ok := f.dirs[strings.ToLower(name)]
	return ok
}

func (f filter) admit(name, typeTag string, mode Mode) bool {
	if mode == Unrestricted {
		return true
	}
	if _, ok := f.files[strings.ToLower(name)]; ok {
		return false
	}
	_, ok := f.allowed[typeTag]
	return ok
}

func lowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

// typeSet accepts tags with or without a leading dot (".py" and "py").
func typeSet(values []string) map[string]struct{} {
	out := lowerSet(values)
	for v := range out {
		if trimmed := strings.TrimPrefix(v, "."); trimmed != v {
			delete(out, v)
			out[trimmed] = struct{}{}
		}
	}
	return out
}
