package aggregate

import (
	"context"
	"fmt"
	"path"
	"strings"

	"codeessence/internal/safeio"
	"codeessence/internal/scan"
	"codeessence/internal/types"
)

// File summarizes a single file of the tree at root through the file-level
// cache. relPath is slash-separated and relative to root.
func (a *Aggregator) File(ctx context.Context, repoID, root, relPath string) (UnitResult, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return UnitResult{}, fmt.Errorf("aggregate: open workspace: %w", err)
	}
	rel := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(relPath, "\\", "/")), "/")
	if rel == "" {
		return UnitResult{}, fmt.Errorf("aggregate: empty file path")
	}
	abs, err := fsys.Abs(rel)
	if err != nil {
		return UnitResult{}, err
	}
	r := &run{a: a, repoID: repoID, fsys: fsys, g: types.GranularityFile}
	entry := scan.FileEntry{Path: rel, AbsPath: abs, TypeTag: scan.Classify(rel)}
	return r.fileUnit(ctx, entry), nil
}

// SummarizeText runs content through the chunk-reduce path without caching.
func (a *Aggregator) SummarizeText(ctx context.Context, content, typeHint string) (string, error) {
	return a.summarizeText(ctx, content, typeHint)
}
