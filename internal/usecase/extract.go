package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/automv/internal/types"
)

// boundsEpsilon absorbs float noise when a segment ends exactly at the end of
// the trimmed video.
const boundsEpsilon = 1e-6

// extract encodes every planned segment into its own file. A failed segment is logged and
// left out; the stage fails only when nothing survives. The result is ordered
// by SequenceIndex whatever order the encodes finish in.
func (u Usecase) extract(
	ctx context.Context,
	in Input,
	em *emitter,
	log zerolog.Logger,
	trimmed string,
	trimmedDur float64,
	specs []types.SegmentSpec,
) ([]types.ExtractedSegment, error) {
	dir := filepath.Join(in.Job.WorkingDir, "segments")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create segments dir: %w", err)
	}

	workers := in.ExtractWorkers
	if workers < 1 {
		workers = 1
	}
	slots := make([]*types.ExtractedSegment, len(specs))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)
	for i, spec := range specs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			seg, err := u.extractOne(ctx, in, dir, trimmed, trimmedDur, spec)
			if err != nil {
				log.Warn().Err(err).Int("segment", spec.SequenceIndex).Msg("segment skipped")
			} else {
				slots[i] = &seg
			}
			n := done.Add(1)
			em.emit(types.StageExtracting, float64(n)*100/float64(len(specs)), fmt.Sprintf("%d/%d", n, len(specs)))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]types.ExtractedSegment, 0, len(specs))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b types.ExtractedSegment) int { return a.SequenceIndex - b.SequenceIndex })
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: all %d segments failed", types.ErrNoSegments, len(specs))
	}
	if skipped := len(specs) - len(out); skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("kept", len(out)).Msg("some segments failed")
	}
	return out, nil
}

func (u Usecase) extractOne(
	ctx context.Context,
	in Input,
	dir, trimmed string,
	trimmedDur float64,
	spec types.SegmentSpec,
) (types.ExtractedSegment, error) {
	if spec.Duration <= 0 {
		return types.ExtractedSegment{}, fmt.Errorf("segment %d: non-positive duration %v", spec.SequenceIndex, spec.Duration)
	}
	if spec.SourceStart < 0 || spec.End() > trimmedDur+boundsEpsilon {
		return types.ExtractedSegment{}, fmt.Errorf("segment %d: span [%.3f, %.3f) outside trimmed video of %.3fs",
			spec.SequenceIndex, spec.SourceStart, spec.End(), trimmedDur)
	}

	out := filepath.Join(dir, fmt.Sprintf("segment_%d.mp4", spec.SequenceIndex))
	cctx, cancel := withTimeout(ctx, in.CallTimeout)
	defer cancel()
	if err := u.d.Video.ExtractSegment(cctx, trimmed, spec.SourceStart, spec.Duration, out); err != nil {
		_ = os.Remove(out)
		return types.ExtractedSegment{}, fmt.Errorf("segment %d: %w", spec.SequenceIndex, err)
	}
	return types.ExtractedSegment{Path: out, Duration: spec.Duration, SequenceIndex: spec.SequenceIndex}, nil
}
