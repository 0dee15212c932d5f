package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File names written by WriteFiles, each suffixed with the run timestamp.
const (
	CurrentIterationFile  = "CurrentIterationProjectTimeline"
	PreviousIterationFile = "PreviousIterationProjectTimeline"
	ProjectSummaryFile    = "ProjectSummary"
)

// WriteFiles writes every document under dir and returns the written paths in
// current, previous, summary order.
func WriteFiles(dir string, docs Documents, asOf time.Time) ([]string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("report output dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	stamp := asOf.UTC().Format("2006_01_02_1504")
	entries := []struct {
		stem    string
		content string
	}{
		{CurrentIterationFile, docs.CurrentIteration},
		{PreviousIterationFile, docs.PreviousIteration},
		{ProjectSummaryFile, docs.ProjectSummary},
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.md", entry.stem, stamp))
		if err := os.WriteFile(path, []byte(entry.content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
