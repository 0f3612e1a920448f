package types

import (
	"fmt"
	"strings"
)

// Granularity is the aggregation level of a summarization request.
type Granularity string

const (
	GranularityFile   Granularity = "file"
	GranularityFolder Granularity = "folder"
	GranularityRepo   Granularity = "repo"
)

// ParseGranularity accepts "file", "folder" or "repo" (case-insensitive,
// surrounding space ignored). An empty string selects repo, matching the
// default of the summarize endpoint.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GranularityRepo, nil
	case GranularityFile, GranularityFolder, GranularityRepo:
		return g, nil
	default:
		return "", fmt.Errorf("granularity must be 'repo', 'folder', or 'file', got %q", s)
	}
}

func (g Granularity) Valid() bool {
	switch g {
	case GranularityFile, GranularityFolder, GranularityRepo:
		return true
	}
	return false
}
