package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

func (p Params) Validate() error {
	if math.IsNaN(p.OffsetBegin) || math.IsInf(p.OffsetBegin, 0) || p.OffsetBegin < 0 {
		return fmt.Errorf("%w: offset begin must be a finite value >= 0, got %v", ErrInvalidParams, p.OffsetBegin)
	}
	if math.IsNaN(p.OffsetEnd) || math.IsInf(p.OffsetEnd, 0) || p.OffsetEnd < 0 {
		return fmt.Errorf("%w: offset end must be a finite value >= 0, got %v", ErrInvalidParams, p.OffsetEnd)
	}
	if p.ClipFactor < 0 {
		return fmt.Errorf("%w: %w, got %d", ErrInvalidParams, ErrInvalidClipFactor, p.ClipFactor)
	}
	return nil
}

// NewJob validates the inputs and returns a Job bound to wd.
func NewJob(wd WorkingDirectory, video, audio, output string, p Params) (Job, error) {
	if err := p.Validate(); err != nil {
		return Job{}, err
	}
	switch {
	case strings.TrimSpace(video) == "":
		return Job{}, fmt.Errorf("%w: video path is empty", ErrInvalidParams)
	case strings.TrimSpace(audio) == "":
		return Job{}, fmt.Errorf("%w: audio path is empty", ErrInvalidParams)
	case strings.TrimSpace(output) == "":
		return Job{}, fmt.Errorf("%w: output path is empty", ErrInvalidParams)
	case wd.Path == "" || wd.ID == "":
		return Job{}, errors.New("job requires a working directory")
	}
	return Job{
		ID:         wd.ID,
		VideoPath:  video,
		AudioPath:  audio,
		OutputPath: output,
		WorkingDir: wd.Path,
		Params:     p,
	}, nil
}
