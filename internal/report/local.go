package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalSink writes reports under a base directory.
type LocalSink struct {
	baseDir string
}

// NewLocalSink creates the base directory if needed and verifies it is
// writable.
func NewLocalSink(baseDir string) (*LocalSink, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("report directory is required")
	}

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create report directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat report directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("report directory %q is not a directory", baseDir)
	}

	probe := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("report directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &LocalSink{baseDir: baseDir}, nil
}

// Save writes the payload to <dir>/<host>/<host>_<ts>.json.
func (s *LocalSink) Save(_ context.Context, run Run) (string, error) {
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(ObjectName(run.Host, run.StartedAt)))

	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for host %q", run.Host)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create host directory: %w", err)
	}
	if err := os.WriteFile(fullPath, run.Payload, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return fullPath, nil
}
