package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/ports"
	"github.com/forPelevin/automv/internal/ports/adapters/aubio"
	"github.com/forPelevin/automv/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/automv/internal/types"
	"github.com/forPelevin/automv/internal/usecase"
	"github.com/forPelevin/automv/internal/workdir"
)

type Config struct {
	FFmpegPath  string
	FFprobePath string
	AubioPath   string
	Profile     ffmpeg.Profile

	// WorkDir is the base for per-job working directories. If empty,
	// defaults to "temp".
	WorkDir     string
	KeepWorkDir bool
	// StaleWorkDirAge removes leftover working directories older than this
	// at batch start; 0 disables.
	StaleWorkDirAge time.Duration

	ExtractWorkers int
	BatchWorkers   int
	CallTimeout    time.Duration

	Log zerolog.Logger
	// Progress receives every job's events. Batch jobs may run concurrently,
	// so it must be safe for concurrent use.
	Progress func(types.Event)
	// Recorder is optional; write failures are logged and never fail a job.
	Recorder ports.Recorder
}

func (c Config) Validate() error {
	if c.ExtractWorkers < 0 {
		return fmt.Errorf("extract workers must be >= 0")
	}
	if c.BatchWorkers < 0 {
		return fmt.Errorf("batch workers must be >= 0")
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call timeout must be >= 0")
	}
	if c.StaleWorkDirAge < 0 {
		return fmt.Errorf("stale work dir age must be >= 0")
	}
	return nil
}

type Pipeline struct {
	cfg Config
	uc  usecase.Usecase
	wd  *workdir.Manager
	log zerolog.Logger
	now func() time.Time
}

// New wires the ffmpeg and aubio adapters behind the job usecase.
func New(cfg Config) (*Pipeline, error) {
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath).
		WithProfile(cfg.Profile).
		WithLogger(cfg.Log)
	b := aubio.New(cfg.AubioPath, v)
	return NewWithDeps(cfg, usecase.Deps{Video: v, Beats: b})
}

// NewWithDeps builds a Pipeline over caller-supplied ports.
func NewWithDeps(cfg Config, deps usecase.Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ExtractWorkers == 0 {
		cfg.ExtractWorkers = 1
	}
	if cfg.BatchWorkers == 0 {
		cfg.BatchWorkers = 1
	}
	log := cfg.Log.With().Str("component", "pipeline").Logger()
	return &Pipeline{
		cfg: cfg,
		uc:  usecase.New(deps),
		wd:  workdir.New(cfg.WorkDir, cfg.Log),
		log: log,
		now: time.Now,
	}, nil
}

// WorkDirs exposes the working-directory manager.
func (p *Pipeline) WorkDirs() *workdir.Manager { return p.wd }

// JobInput describes a single cut. When OutputPath is empty the output goes
// to OutDir (default "output") named after the video and the job id.
type JobInput struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
	OutDir     string
	Params     types.Params
}

// RunJob cuts one video/audio pair in a fresh working directory. The source
// video is read in place and never moved.
func (p *Pipeline) RunJob(ctx context.Context, in JobInput) (types.JobResult, error) {
	res := types.JobResult{
		VideoPath: in.VideoPath,
		AudioPath: in.AudioPath,
		Stage:     types.StagePending,
		Started:   p.now(),
	}
	fail := func(err error) (types.JobResult, error) {
		res.Stage = types.StageFailed
		res.Err = err
		res.Finished = p.now()
		return res, err
	}

	if err := in.Params.Validate(); err != nil {
		return fail(err)
	}
	for _, f := range []struct{ name, path string }{{"video", in.VideoPath}, {"audio", in.AudioPath}} {
		if strings.TrimSpace(f.path) == "" {
			return fail(fmt.Errorf("%w: %s path is empty", types.ErrInvalidParams, f.name))
		}
		if _, err := os.Stat(f.path); err != nil {
			return fail(fmt.Errorf("%w: stat %s: %w", types.ErrInvalidParams, f.name, err))
		}
	}

	wd, err := p.wd.Create()
	if err != nil {
		return fail(err)
	}
	defer p.dispose(wd)
	res.JobID = wd.ID

	output := in.OutputPath
	if output == "" {
		outDir := in.OutDir
		if outDir == "" {
			outDir = "output"
		}
		output = filepath.Join(outDir, outputName(in.VideoPath, wd.ID))
	}
	res.OutputPath = output

	job, err := types.NewJob(wd, in.VideoPath, in.AudioPath, output, in.Params)
	if err != nil {
		return fail(err)
	}
	res = p.execute(ctx, job, res)
	p.record(ctx, res)
	return res, res.Err
}

// execute runs the usecase for job and folds its outcome into res. The
// ledger row is opened here; closing it is left to the caller, which may
// still move files around.
func (p *Pipeline) execute(ctx context.Context, job types.Job, res types.JobResult) types.JobResult {
	log := p.log.With().Str("job_id", job.ID).Logger()
	res.JobID = job.ID
	res.OutputPath = job.OutputPath

	if p.cfg.Recorder != nil {
		if err := p.cfg.Recorder.Start(context.WithoutCancel(ctx), res); err != nil {
			log.Warn().Err(err).Msg("ledger start failed")
		}
	}

	log.Info().
		Str("video", job.VideoPath).
		Str("audio", job.AudioPath).
		Str("work_dir", job.WorkingDir).
		Msg("job started")

	out, err := p.uc.Run(ctx, usecase.Input{
		Job:            job,
		ExtractWorkers: p.cfg.ExtractWorkers,
		CallTimeout:    p.cfg.CallTimeout,
		Progress:       p.cfg.Progress,
		Log:            p.cfg.Log,
	})
	res.SegmentsPlanned = len(out.Plan.Segments)
	res.Segments = len(out.Segments)
	res.TargetDuration = out.Plan.TargetTotalDuration
	res.Finished = p.now()
	if err != nil {
		res.Stage = types.StageFailed
		res.Err = err
		res.OutputPath = ""
		log.Error().Err(err).Str("stage", string(types.StageOf(err))).Msg("job failed")
		return res
	}
	res.Stage = types.StageSucceeded
	log.Info().
		Str("output", job.OutputPath).
		Int("segments", res.Segments).
		Float64("target_sec", res.TargetDuration).
		Dur("took", res.Finished.Sub(res.Started)).
		Msg("job finished")
	return res
}

func (p *Pipeline) record(ctx context.Context, res types.JobResult) {
	if p.cfg.Recorder == nil || res.JobID == "" {
		return
	}
	if err := p.cfg.Recorder.Finish(context.WithoutCancel(ctx), res); err != nil {
		p.log.Warn().Err(err).Str("job_id", res.JobID).Msg("ledger finish failed")
	}
}

func (p *Pipeline) dispose(wd types.WorkingDirectory) {
	if p.cfg.KeepWorkDir {
		p.log.Info().Str("work_dir", wd.Path).Msg("keeping working directory")
		return
	}
	p.wd.Dispose(wd)
}

// outputName is "<normalized title>_<job id>.mp4"; titles that normalize to
// nothing become "video".
func outputName(videoPath, jobID string) string {
	base := filepath.Base(videoPath)
	title := normalizePathSegment(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" {
		title = "video"
	}
	return fmt.Sprintf("%s_%s.mp4", title, jobID)
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// IsUserError reports whether err stems from bad input rather than a tool or
// filesystem failure.
func IsUserError(err error) bool {
	return errors.Is(err, types.ErrInvalidParams) ||
		errors.Is(err, types.ErrInvalidClipFactor) ||
		errors.Is(err, types.ErrNoInputFiles) ||
		errors.Is(err, types.ErrBatchLocked)
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.BeatSource = (*aubio.Adapter)(nil)
