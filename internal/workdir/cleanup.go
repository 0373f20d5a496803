package workdir

import (
	"os"
	"path/filepath"
	"time"
)

type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes working directories last modified before now-maxAge.
// Directories left behind by crashed runs are the only expected targets.
// Pinned directories are never removed.
func (m *Manager) CleanStale(maxAge time.Duration) CleanStaleResult {
	var result CleanStaleResult
	if maxAge <= 0 {
		return result
	}

	entries, err := os.ReadDir(m.base)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: m.base, Error: err})
		}
		return result
	}

	cutoff := m.now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(m.base, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if _, err := os.Stat(filepath.Join(dirPath, pinFile)); err == nil {
			m.log.Warn().Str("path", dirPath).Msg("skipping pinned working directory")
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			m.log.Warn().Err(err).Str("path", dirPath).Msg("failed to remove stale working directory")
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		m.log.Info().Str("path", dirPath).Dur("age", m.now().Sub(info.ModTime())).Msg("removed stale working directory")
	}
	return result
}
