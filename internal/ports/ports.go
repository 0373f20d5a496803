package ports

import (
	"context"

	"github.com/forPelevin/automv/internal/types"
)

// ProgressFunc receives the completed fraction of a running media operation
// in [0, 1]. It is display-only.
type ProgressFunc func(fraction float64)

type VideoTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	TrimCopy(ctx context.Context, in string, start, duration float64, out string, progress ProgressFunc) error
	ExtractSegment(ctx context.Context, in string, start, duration float64, out string) error
	Concat(ctx context.Context, manifest, out string) error
	Mux(ctx context.Context, video, audio string, duration float64, out string, progress ProgressFunc) error
	ConvertToWav(ctx context.Context, in, outWav string) error
}

type BeatSource interface {
	DetectBeats(ctx context.Context, audioPath, workDir string) (types.BeatTimeline, error)
}

// Recorder persists job outcomes.
type Recorder interface {
	Start(ctx context.Context, r types.JobResult) error
	Finish(ctx context.Context, r types.JobResult) error
}
