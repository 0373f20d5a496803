package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/domain/beats"
	"github.com/forPelevin/automv/internal/ports"
	"github.com/forPelevin/automv/internal/types"
)

type Deps struct {
	Video ports.VideoTool
	Beats ports.BeatSource
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	Job types.Job

	// ExtractWorkers bounds concurrent segment encodes; values below 1 mean 1.
	ExtractWorkers int
	// CallTimeout bounds every external tool invocation; 0 disables it.
	CallTimeout time.Duration

	Progress func(types.Event)
	Log      zerolog.Logger
}

type Result struct {
	OutputPath      string
	TrimmedDuration float64
	Beats           int
	Plan            beats.Plan
	Segments        []types.ExtractedSegment
}

// Run executes trim, beat detection, planning, extraction and assembly for one
// job, strictly in that order. Failures come back as *types.JobError carrying
// the stage that failed. Result holds whatever was computed before a failure.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	job := in.Job
	em := newEmitter(job.ID, in.Progress)
	log := in.Log.With().Str("job_id", job.ID).Logger()
	var res Result

	fail := func(stage types.Stage, err error) (Result, error) {
		em.emit(types.StageFailed, types.Indeterminate, err.Error())
		return res, &types.JobError{JobID: job.ID, Stage: stage, Err: err}
	}

	// trim
	if err := ctx.Err(); err != nil {
		return fail(types.StageTrimming, err)
	}
	em.emit(types.StageTrimming, 0, "")
	log.Info().Float64("offset_begin", job.Params.OffsetBegin).Float64("offset_end", job.Params.OffsetEnd).Msg("trimming video")
	trimmed, trimmedDur, err := u.trim(ctx, in, em)
	if err != nil {
		return fail(types.StageTrimming, err)
	}
	res.TrimmedDuration = trimmedDur

	// beats
	if err := ctx.Err(); err != nil {
		return fail(types.StageBeatDetecting, err)
	}
	em.emit(types.StageBeatDetecting, types.Indeterminate, "")
	log.Info().Str("audio", job.AudioPath).Msg("detecting beats")
	timeline, err := u.detect(ctx, in)
	if err != nil {
		return fail(types.StageBeatDetecting, err)
	}
	res.Beats = len(timeline)
	if len(timeline) < job.Params.ClipFactor+2 {
		return fail(types.StageBeatDetecting, fmt.Errorf("%w: %d beats, clip factor %d needs at least %d",
			types.ErrNotEnoughBeats, len(timeline), job.Params.ClipFactor, job.Params.ClipFactor+2))
	}

	// plan
	if err := ctx.Err(); err != nil {
		return fail(types.StagePlanning, err)
	}
	em.emit(types.StagePlanning, types.Indeterminate, "")
	plan, err := beats.BuildPlan(timeline, job.Params.ClipFactor, trimmedDur)
	if err != nil {
		return fail(types.StagePlanning, err)
	}
	if plan.Empty() {
		return fail(types.StagePlanning, types.ErrNotEnoughBeats)
	}
	res.Plan = plan
	log.Info().
		Int("beats", len(timeline)).
		Int("segments", len(plan.Segments)).
		Float64("target_sec", plan.TargetTotalDuration).
		Float64("trimmed_sec", trimmedDur).
		Msg("segments planned")

	// extract
	if err := ctx.Err(); err != nil {
		return fail(types.StageExtracting, err)
	}
	em.emit(types.StageExtracting, 0, fmt.Sprintf("0/%d", len(plan.Segments)))
	segs, err := u.extract(ctx, in, em, log, trimmed, trimmedDur, plan.Segments)
	if err != nil {
		return fail(types.StageExtracting, err)
	}
	res.Segments = segs

	// assemble
	if err := ctx.Err(); err != nil {
		return fail(types.StageAssembling, err)
	}
	em.emit(types.StageAssembling, 0, "")
	log.Info().Int("segments", len(segs)).Str("output", job.OutputPath).Msg("assembling output")
	if err := u.assemble(ctx, in, em, segs, plan.TargetTotalDuration); err != nil {
		return fail(types.StageAssembling, err)
	}
	res.OutputPath = job.OutputPath

	em.emit(types.StageSucceeded, 100, job.OutputPath)
	return res, nil
}

func (u Usecase) detect(ctx context.Context, in Input) (types.BeatTimeline, error) {
	cctx, cancel := withTimeout(ctx, in.CallTimeout)
	defer cancel()
	timeline, err := u.d.Beats.DetectBeats(cctx, in.Job.AudioPath, in.Job.WorkingDir)
	if err != nil {
		return nil, err
	}
	if err := beats.Validate(timeline); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBeatDetection, err)
	}
	return timeline, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// emitter serializes progress events; extraction reports from several
// goroutines.
type emitter struct {
	mu    sync.Mutex
	jobID string
	fn    func(types.Event)
}

func newEmitter(jobID string, fn func(types.Event)) *emitter {
	return &emitter{jobID: jobID, fn: fn}
}

func (e *emitter) emit(stage types.Stage, percent float64, msg string) {
	if e.fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn(types.Event{JobID: e.jobID, Stage: stage, Percent: percent, Message: msg, At: time.Now()})
}

// fraction adapts an emitter to ports.ProgressFunc for one stage.
func (e *emitter) fraction(stage types.Stage) ports.ProgressFunc {
	return func(f float64) { e.emit(stage, f*100, "") }
}

func videoExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ".mp4"
	}
	return ext
}
