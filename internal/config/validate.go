package config

import (
	"errors"
	"fmt"

	"github.com/forPelevin/automv/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.JobParams().Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if err := c.validateJob(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	for name, v := range map[string]string{
		"paths.video_dir":     c.Paths.VideoDir,
		"paths.audio_dir":     c.Paths.AudioDir,
		"paths.processed_dir": c.Paths.ProcessedDir,
		"paths.out_dir":       c.Paths.OutDir,
		"paths.work_dir":      c.Paths.WorkDir,
	} {
		if v == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.FFmpeg == "" || c.Tools.FFprobe == "" || c.Tools.Aubio == "" {
		return errors.New("tools.ffmpeg, tools.ffprobe and tools.aubio must be set")
	}
	return nil
}

func (c *Config) validateJob() error {
	if c.Job.ExtractWorkers < 1 {
		return fmt.Errorf("job.extract_workers must be >= 1, got %d", c.Job.ExtractWorkers)
	}
	if c.Job.StageTimeoutSeconds < 0 {
		return fmt.Errorf("job.stage_timeout_seconds must be >= 0, got %d", c.Job.StageTimeoutSeconds)
	}
	if c.Job.StaleWorkDirHours < 0 {
		return fmt.Errorf("job.stale_work_dir_hours must be >= 0, got %d", c.Job.StaleWorkDirHours)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1, got %d", c.Batch.Workers)
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.SegmentPreset == "" || c.Encoding.MuxPreset == "" {
		return errors.New("encoding.segment_preset and encoding.mux_preset must be set")
	}
	if c.Encoding.MuxCRF < 0 || c.Encoding.MuxCRF > 51 {
		return fmt.Errorf("encoding.mux_crf must be between 0 and 51, got %d", c.Encoding.MuxCRF)
	}
	if c.Encoding.AudioBitrate == "" {
		return errors.New("encoding.audio_bitrate must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}
