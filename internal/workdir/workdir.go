// Package workdir allocates and reclaims the per-job scratch directories.
//
// Every job owns exactly one directory below the manager's base. Directory
// names are "<unix millis>_<random>" and are created with a non-recursive
// mkdir, so two managers sharing a base can never hand out the same path.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/types"
)

const createAttempts = 5

// sourceDir holds adopted inputs, apart from the job's own scratch files.
const sourceDir = "source"

// pinFile marks a working directory that still holds a file the user owns.
const pinFile = ".pinned"

type Manager struct {
	base  string
	log   zerolog.Logger
	now   func() time.Time
	newID func(time.Time) string
}

func New(base string, log zerolog.Logger) *Manager {
	if strings.TrimSpace(base) == "" {
		base = "temp"
	}
	return &Manager{
		base:  filepath.Clean(base),
		log:   log.With().Str("component", "workdir").Logger(),
		now:   time.Now,
		newID: newID,
	}
}

// Base returns the directory that holds every working directory.
func (m *Manager) Base() string { return m.base }

func (m *Manager) Create() (types.WorkingDirectory, error) {
	if err := os.MkdirAll(m.base, 0o755); err != nil {
		return types.WorkingDirectory{}, fmt.Errorf("create work base: %w", err)
	}
	for attempt := 0; attempt < createAttempts; attempt++ {
		id := m.newID(m.now())
		p := filepath.Join(m.base, id)
		err := os.Mkdir(p, 0o755)
		if err == nil {
			m.log.Debug().Str("path", p).Msg("working directory created")
			return types.WorkingDirectory{ID: id, Path: p}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return types.WorkingDirectory{}, fmt.Errorf("create working directory: %w", err)
		}
	}
	return types.WorkingDirectory{}, fmt.Errorf("create working directory: %d id collisions in %s", createAttempts, m.base)
}

// Dispose removes wd and everything in it. Failures are logged, not returned.
func (m *Manager) Dispose(wd types.WorkingDirectory) {
	if !m.owns(wd.Path) {
		m.log.Warn().Str("path", wd.Path).Msg("refusing to dispose directory outside work base")
		return
	}
	if err := os.RemoveAll(wd.Path); err != nil {
		m.log.Warn().Err(err).Str("path", wd.Path).Msg("failed to remove working directory")
		return
	}
	m.log.Debug().Str("path", wd.Path).Msg("working directory removed")
}

// Adopt moves src into wd/source with a single rename and returns its new
// path. The rename is the ownership transfer: it fails rather than copying
// when src lives on another filesystem.
func (m *Manager) Adopt(wd types.WorkingDirectory, src string) (string, error) {
	dir := filepath.Join(wd.Path, sourceDir)
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("create source dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move %s into working directory: %w", src, err)
	}
	return dst, nil
}

// Release moves a file out of its working directory to dst. dst must not
// exist yet.
func (m *Manager) Release(path, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("release %s: %s already exists", filepath.Base(path), dst)
	}
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("release %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Pin marks wd as holding a file that could not be moved back out. A pinned
// directory survives stale cleanup until someone deletes the marker.
func (m *Manager) Pin(wd types.WorkingDirectory, reason string) error {
	if err := os.WriteFile(filepath.Join(wd.Path, pinFile), []byte(reason+"\n"), 0o644); err != nil {
		return fmt.Errorf("pin %s: %w", wd.Path, err)
	}
	m.log.Warn().Str("path", wd.Path).Str("reason", reason).Msg("working directory pinned")
	return nil
}

func (m *Manager) owns(p string) bool {
	if p == "" {
		return false
	}
	rel, err := filepath.Rel(m.base, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

func newID(now time.Time) string {
	r := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d_%s", now.UnixMilli(), r[:9])
}
