// Package config loads automv settings from TOML, the environment and
// built-in defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/forPelevin/automv/internal/types"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths holds the batch folders, the working-directory base and the ledger
// file. An empty Ledger disables job history.
type Paths struct {
	VideoDir     string `toml:"video_dir"`
	AudioDir     string `toml:"audio_dir"`
	ProcessedDir string `toml:"processed_dir"`
	OutDir       string `toml:"out_dir"`
	WorkDir      string `toml:"work_dir"`
	Ledger       string `toml:"ledger"`
}

// Tools names the external binaries; bare names are looked up on PATH.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	Aubio   string `toml:"aubio"`
}

// Params are the default cut parameters; CLI flags override them per run.
type Params struct {
	OffsetBegin float64 `toml:"offset_begin"`
	OffsetEnd   float64 `toml:"offset_end"`
	ClipFactor  int     `toml:"clip_factor"`
}

// Job tunes a single job run.
type Job struct {
	ExtractWorkers      int  `toml:"extract_workers"`
	StageTimeoutSeconds int  `toml:"stage_timeout_seconds"` // 0 disables
	KeepWorkDir         bool `toml:"keep_work_dir"`
	StaleWorkDirHours   int  `toml:"stale_work_dir_hours"` // 0 disables cleanup
}

// Batch tunes folder runs. Seed 0 picks audio with a random seed.
type Batch struct {
	Workers int    `toml:"workers"`
	Seed    uint64 `toml:"seed"`
}

// Encoding holds ffmpeg encoder settings.
type Encoding struct {
	SegmentPreset string `toml:"segment_preset"`
	MuxPreset     string `toml:"mux_preset"`
	MuxCRF        int    `toml:"mux_crf"`
	AudioBitrate  string `toml:"audio_bitrate"`
}

type API struct {
	Bind string `toml:"bind"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for automv.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tools    Tools    `toml:"tools"`
	Params   Params   `toml:"params"`
	Job      Job      `toml:"job"`
	Batch    Batch    `toml:"batch"`
	Encoding Encoding `toml:"encoding"`
	API      API      `toml:"api"`
	Logging  Logging  `toml:"logging"`
}

// Environment variables that override file values.
const (
	EnvFFmpeg   = "AUTOMV_FFMPEG"
	EnvFFprobe  = "AUTOMV_FFPROBE"
	EnvAubio    = "AUTOMV_AUBIO"
	EnvWorkDir  = "AUTOMV_WORK_DIR"
	EnvLedger   = "AUTOMV_LEDGER"
	EnvLogLevel = "AUTOMV_LOG_LEVEL"
)

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/automv/config.toml")
}

// Load locates, parses, and validates a configuration file. An explicit path
// that does not exist is not an error; defaults are used. The returned string
// is the resolved path and the bool reports whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs("automv.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		EnvFFmpeg:   &c.Tools.FFmpeg,
		EnvFFprobe:  &c.Tools.FFprobe,
		EnvAubio:    &c.Tools.Aubio,
		EnvWorkDir:  &c.Paths.WorkDir,
		EnvLogLevel: &c.Logging.Level,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	// Set but empty disables the ledger.
	if v, ok := os.LookupEnv(EnvLedger); ok {
		c.Paths.Ledger = strings.TrimSpace(v)
	}
}

func (c *Config) normalize() error {
	dirs := []struct {
		name string
		val  *string
	}{
		{"paths.video_dir", &c.Paths.VideoDir},
		{"paths.audio_dir", &c.Paths.AudioDir},
		{"paths.processed_dir", &c.Paths.ProcessedDir},
		{"paths.out_dir", &c.Paths.OutDir},
		{"paths.work_dir", &c.Paths.WorkDir},
		{"paths.ledger", &c.Paths.Ledger},
	}
	for _, d := range dirs {
		v, err := expandPath(strings.TrimSpace(*d.val))
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.val = v
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	return nil
}

// JobParams converts the [params] table into validated-at-construction job
// parameters.
func (c *Config) JobParams() types.Params {
	return types.Params{
		OffsetBegin: c.Params.OffsetBegin,
		OffsetEnd:   c.Params.OffsetEnd,
		ClipFactor:  c.Params.ClipFactor,
	}
}

// StageTimeout is the per-call budget for external tools; 0 means none.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Job.StageTimeoutSeconds) * time.Second
}

// StaleWorkDirAge is the age past which leftover working directories are
// removed; 0 disables cleanup.
func (c *Config) StaleWorkDirAge() time.Duration {
	return time.Duration(c.Job.StaleWorkDirHours) * time.Hour
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string { return sampleConfig }

// WriteSample writes the sample configuration to path, creating parent
// directories. An existing file is left alone unless overwrite is set.
func WriteSample(path string, overwrite bool) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if !overwrite {
		if _, err := os.Stat(expanded); err == nil {
			return "", fmt.Errorf("config %s already exists", expanded)
		}
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return expanded, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(p string) (string, error) { return expandPath(p) }

func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
