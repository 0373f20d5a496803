package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParams        = errors.New("invalid job parameters")
	ErrProbe                = errors.New("probe failed")
	ErrInsufficientDuration = errors.New("video is shorter than the sum of the offsets")
	ErrBeatDetection        = errors.New("beat detection failed")
	ErrNotEnoughBeats       = errors.New("not enough beats for the clip factor")
	ErrInvalidBeats         = errors.New("beat timeline is not strictly increasing")
	ErrInvalidClipFactor    = errors.New("clip factor must be >= 0")
	ErrNoSegments           = errors.New("no segments were generated")
	ErrAssembly             = errors.New("assembly failed")
	ErrNoInputFiles         = errors.New("no eligible input files")
	ErrBatchLocked          = errors.New("another batch is processing this folder")
)

// JobError ties a failure to the job and stage it happened in.
type JobError struct {
	JobID string
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded on err, or StageFailed when err carries none.
func StageOf(err error) Stage {
	var je *JobError
	if errors.As(err, &je) {
		return je.Stage
	}
	return StageFailed
}
