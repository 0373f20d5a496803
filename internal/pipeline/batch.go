package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/automv/internal/types"
)

var (
	VideoExts = []string{".mkv", ".mov", ".mp4", ".wmv", ".avi"}
	AudioExts = []string{".mp3", ".flac", ".ogg", ".wav"}
)

// LockName is the advisory lock file a batch holds in its video folder.
const LockName = ".automv.lock"

type BatchInput struct {
	VideoDir     string
	AudioDir     string
	ProcessedDir string
	OutDir       string
	Params       types.Params

	// Seed fixes the audio pick; 0 draws a random seed.
	Seed uint64
	// OnResult is called once per finished job, never concurrently.
	OnResult func(types.JobResult)
}

// RunBatch pairs every eligible video in VideoDir with a random audio track
// from AudioDir and cuts each pair as an independent job. A failed job is
// reported in its result and the batch moves on; the returned error covers
// only the batch itself (bad input, no files, lock held, cancellation).
func (p *Pipeline) RunBatch(ctx context.Context, in BatchInput) ([]types.JobResult, error) {
	if err := in.Params.Validate(); err != nil {
		return nil, err
	}
	for name, dir := range map[string]string{
		"video dir":     in.VideoDir,
		"audio dir":     in.AudioDir,
		"processed dir": in.ProcessedDir,
		"out dir":       in.OutDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("%w: %s is empty", types.ErrInvalidParams, name)
		}
	}
	if info, err := os.Stat(in.VideoDir); err != nil {
		return nil, fmt.Errorf("%w: video dir: %w", types.ErrNoInputFiles, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrNoInputFiles, in.VideoDir)
	}

	lock := flock.New(filepath.Join(in.VideoDir, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrBatchLocked, in.VideoDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.log.Warn().Err(err).Msg("failed to release batch lock")
		}
	}()

	videos, err := listMedia(in.VideoDir, VideoExts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNoInputFiles, err)
	}
	audios, err := listMedia(in.AudioDir, AudioExts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNoInputFiles, err)
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no video files in %s", types.ErrNoInputFiles, in.VideoDir)
	}
	if len(audios) == 0 {
		return nil, fmt.Errorf("%w: no audio files in %s", types.ErrNoInputFiles, in.AudioDir)
	}

	for _, dir := range []string{in.ProcessedDir, in.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if stale := p.wd.CleanStale(p.cfg.StaleWorkDirAge); len(stale.Removed) > 0 || len(stale.Errors) > 0 {
		p.log.Info().Int("removed", len(stale.Removed)).Int("errors", len(stale.Errors)).Msg("stale working directories cleaned")
	}

	picks := pickAudio(videos, audios, in.Seed)
	p.log.Info().
		Int("videos", len(videos)).
		Int("audios", len(audios)).
		Int("workers", p.cfg.BatchWorkers).
		Msg("batch started")

	slots := make([]*types.JobResult, len(videos))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.BatchWorkers)
	for i, name := range videos {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := p.runBatchJob(ctx, in, name, filepath.Join(in.AudioDir, picks[i]))
			slots[i] = &res
			if in.OnResult != nil {
				mu.Lock()
				in.OnResult(res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	results := lo.FilterMap(slots, func(r *types.JobResult, _ int) (types.JobResult, bool) {
		if r == nil {
			return types.JobResult{}, false
		}
		return *r, true
	})
	failed := lo.CountBy(results, func(r types.JobResult) bool { return !r.OK() })
	p.log.Info().
		Int("jobs", len(results)).
		Int("succeeded", len(results)-failed).
		Int("failed", failed).
		Msg("batch finished")
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// runBatchJob moves the video into a fresh working directory, cuts it, and
// then moves the untouched original to ProcessedDir on success or back to
// VideoDir on failure.
func (p *Pipeline) runBatchJob(ctx context.Context, in BatchInput, name, audio string) types.JobResult {
	src := filepath.Join(in.VideoDir, name)
	res := types.JobResult{
		VideoPath: src,
		AudioPath: audio,
		Stage:     types.StagePending,
		Started:   p.now(),
	}
	fail := func(err error) types.JobResult {
		res.Stage = types.StageFailed
		res.Err = &types.JobError{JobID: res.JobID, Stage: types.StagePending, Err: err}
		res.Finished = p.now()
		p.log.Error().Err(err).Str("video", name).Msg("job not started")
		p.record(ctx, res)
		return res
	}

	wd, err := p.wd.Create()
	if err != nil {
		return fail(err)
	}
	res.JobID = wd.ID

	adopted, err := p.wd.Adopt(wd, src)
	if err != nil {
		p.dispose(wd)
		return fail(err)
	}
	output := filepath.Join(in.OutDir, outputName(name, wd.ID))
	job, err := types.NewJob(wd, adopted, audio, output, in.Params)
	if err != nil {
		p.giveBack(wd, adopted, src)
		return fail(err)
	}

	res = p.execute(ctx, job, res)
	res.VideoPath = src
	if res.OK() {
		dst := processedPath(in.ProcessedDir, name, wd.ID)
		if err := p.wd.Release(adopted, dst); err != nil {
			p.log.Warn().Err(err).Str("job_id", wd.ID).Msg("could not move original to processed dir, returning it")
			p.giveBack(wd, adopted, src)
		} else {
			res.ProcessedPath = dst
			p.dispose(wd)
		}
	} else {
		p.giveBack(wd, adopted, src)
	}
	p.record(ctx, res)
	return res
}

// giveBack returns the adopted source to where it came from and disposes wd.
// If the file cannot be moved the directory is pinned instead, so the
// original is never deleted.
func (p *Pipeline) giveBack(wd types.WorkingDirectory, adopted, src string) {
	if err := p.wd.Release(adopted, src); err != nil {
		p.log.Error().Err(err).Str("job_id", wd.ID).Str("kept_at", adopted).Msg("could not return source video")
		if perr := p.wd.Pin(wd, err.Error()); perr != nil {
			p.log.Error().Err(perr).Str("job_id", wd.ID).Msg("failed to pin working directory")
		}
		return
	}
	p.dispose(wd)
}

// listMedia returns the names of regular, non-hidden files in dir whose
// extension is in exts (case-insensitive), sorted by name.
func listMedia(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			return "", false
		}
		return name, lo.Contains(exts, strings.ToLower(filepath.Ext(name)))
	}), nil
}

// pickAudio draws one audio name per video, uniformly and independently, from
// a single generator seeded once for the batch.
func pickAudio(videos, audios []string, seed uint64) []string {
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return lo.Map(videos, func(string, int) string {
		return audios[rng.IntN(len(audios))]
	})
}

// processedPath keeps the original name unless it is already taken.
func processedPath(dir, name, jobID string) string {
	dst := filepath.Join(dir, name)
	if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
		return dst
	}
	ext := filepath.Ext(name)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", strings.TrimSuffix(name, ext), jobID, ext))
}
