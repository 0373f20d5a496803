package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/automv/internal/types"
)

// assemble concatenates segs into one silent video, muxes it with the job's
// audio cut to target seconds, and moves the result to the output path. The
// mux writes to a hidden sibling of the output first so a failure never
// leaves a partial file at the final path.
func (u Usecase) assemble(ctx context.Context, in Input, em *emitter, segs []types.ExtractedSegment, target float64) error {
	job := in.Job
	manifest := filepath.Join(job.WorkingDir, "segments.txt")
	if err := writeConcatManifest(manifest, segs); err != nil {
		return fmt.Errorf("%w: %w", types.ErrAssembly, err)
	}

	silent := filepath.Join(job.WorkingDir, "concat.mp4")
	cctx, cancel := withTimeout(ctx, in.CallTimeout)
	err := u.d.Video.Concat(cctx, manifest, silent)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrAssembly, err)
	}
	em.emit(types.StageAssembling, 10, "segments concatenated")

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %w", types.ErrAssembly, err)
	}
	partial := partialPath(job.OutputPath, job.ID)
	mctx, mcancel := withTimeout(ctx, in.CallTimeout)
	err = u.d.Video.Mux(mctx, silent, job.AudioPath, target, partial, func(f float64) {
		em.emit(types.StageAssembling, 10+f*90, "")
	})
	mcancel()
	if err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("%w: %w", types.ErrAssembly, err)
	}
	if err := os.Rename(partial, job.OutputPath); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("%w: publish output: %w", types.ErrAssembly, err)
	}

	_ = os.Remove(manifest)
	_ = os.Remove(silent)
	return nil
}

// writeConcatManifest writes an ffmpeg concat demuxer list with absolute,
// slash-separated paths in segs order.
func writeConcatManifest(path string, segs []types.ExtractedSegment) error {
	var b strings.Builder
	for _, s := range segs {
		abs, err := filepath.Abs(s.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(filepath.ToSlash(abs)))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// escapeConcatPath closes the quote, emits an escaped quote, and reopens it.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

func partialPath(output, jobID string) string {
	dir, base := filepath.Split(output)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".partial-"+jobID+ext)
}
