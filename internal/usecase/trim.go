package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/forPelevin/automv/internal/types"
)

// trim stream-copies [offsetBegin, duration-offsetEnd] of the source into the
// working directory and returns the copy with its probed length. Copy cuts
// snap to keyframes, so the copy is probed again rather than trusting the
// requested span.
func (u Usecase) trim(ctx context.Context, in Input, em *emitter) (string, float64, error) {
	job := in.Job
	total, err := u.probe(ctx, in, job.VideoPath)
	if err != nil {
		return "", 0, err
	}
	ob, oe := job.Params.OffsetBegin, job.Params.OffsetEnd
	if total < ob+oe {
		return "", 0, fmt.Errorf("%w: duration %.3fs, offsets %.3fs + %.3fs", types.ErrInsufficientDuration, total, ob, oe)
	}

	out := filepath.Join(job.WorkingDir, "trimmed"+videoExt(job.VideoPath))
	cctx, cancel := withTimeout(ctx, in.CallTimeout)
	defer cancel()
	if err := u.d.Video.TrimCopy(cctx, job.VideoPath, ob, total-ob-oe, out, em.fraction(types.StageTrimming)); err != nil {
		return "", 0, err
	}

	trimmedDur, err := u.probe(ctx, in, out)
	if err != nil {
		return "", 0, err
	}
	return out, trimmedDur, nil
}

func (u Usecase) probe(ctx context.Context, in Input, path string) (float64, error) {
	cctx, cancel := withTimeout(ctx, in.CallTimeout)
	defer cancel()
	return u.d.Video.ProbeDuration(cctx, path)
}
