package beats

import (
	"fmt"

	"github.com/forPelevin/automv/internal/types"
)

// Plan is the ordered set of sub-clips cut for one job.
type Plan struct {
	Segments            []types.SegmentSpec
	TargetTotalDuration float64
}

// Empty reports whether the timeline produced no intervals.
func (p Plan) Empty() bool { return len(p.Segments) == 0 }

// Intervals returns floor((n-1)/(cf+1)), the number of beat intervals a
// timeline of n beats yields for clip factor cf.
func Intervals(n, cf int) int {
	if n < 2 || cf < 0 {
		return 0
	}
	return (n - 1) / (cf + 1)
}

// BuildPlan partitions beats into intervals of cf+1 beats and maps each interval
// onto the trimmed video.
//
// Interval k spans beats[k*step] to beats[k*step+step]. Its start in the video
// is chosen from its position among all intervals, swept linearly from 0 to
// trimmedDuration-clipDuration; the beat's own timestamp plays no part. Clips
// may therefore overlap when intervals are short.
//
// Fewer than one interval yields an empty Plan and a nil error so callers can
// pick the policy. A non-positive interval means the timeline is broken and
// returns ErrInvalidBeats. A negative sweep range is not an error here; the
// extractor rejects segments that fall outside the video.
func BuildPlan(beats types.BeatTimeline, cf int, trimmedDuration float64) (Plan, error) {
	if cf < 0 {
		return Plan{}, fmt.Errorf("%w, got %d", types.ErrInvalidClipFactor, cf)
	}
	step := cf + 1
	numIntervals := Intervals(len(beats), cf)
	if numIntervals < 1 {
		return Plan{}, nil
	}

	out := Plan{Segments: make([]types.SegmentSpec, 0, numIntervals)}
	for k := 0; k < numIntervals; k++ {
		i := k * step
		j := i + step
		clipDuration := beats[j] - beats[i]
		if !(clipDuration > 0) {
			return Plan{}, fmt.Errorf("%w: interval %d (beats %d..%d) has duration %v", types.ErrInvalidBeats, k, i, j, clipDuration)
		}
		out.TargetTotalDuration += clipDuration

		normalizedIndex := 0.0
		if numIntervals > 1 {
			normalizedIndex = float64(k) / float64(numIntervals-1)
		}
		maxStart := trimmedDuration - clipDuration

		out.Segments = append(out.Segments, types.SegmentSpec{
			SourceStart:   normalizedIndex * maxStart,
			Duration:      clipDuration,
			SequenceIndex: k,
		})
	}
	return out, nil
}
