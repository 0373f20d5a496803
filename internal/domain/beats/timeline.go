package beats

import (
	"fmt"
	"math"

	"github.com/forPelevin/automv/internal/types"
)

// Validate checks that every timestamp is finite, non-negative and larger than
// the one before it.
func Validate(t types.BeatTimeline) error {
	prev := math.Inf(-1)
	for i, ts := range t {
		if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
			return fmt.Errorf("%w: beat %d has timestamp %v", types.ErrInvalidBeats, i, ts)
		}
		if ts <= prev {
			return fmt.Errorf("%w: beat %d (%v) does not follow %v", types.ErrInvalidBeats, i, ts, prev)
		}
		prev = ts
	}
	return nil
}
