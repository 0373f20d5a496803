package types

import "time"

// BeatTimeline is an ascending list of beat timestamps in seconds.
type BeatTimeline []float64

type SegmentSpec struct {
	SourceStart   float64 `json:"source_start"`
	Duration      float64 `json:"duration"`
	SequenceIndex int     `json:"sequence_index"`
}

// End returns the exclusive end of the span cut from the trimmed video.
func (s SegmentSpec) End() float64 { return s.SourceStart + s.Duration }

type ExtractedSegment struct {
	Path          string
	Duration      float64
	SequenceIndex int
}

// Params are the numeric knobs of a single job.
type Params struct {
	OffsetBegin float64 `json:"offset_begin"`
	OffsetEnd   float64 `json:"offset_end"`
	ClipFactor  int     `json:"clip_factor"`
}

type Job struct {
	ID         string
	VideoPath  string
	AudioPath  string
	OutputPath string
	WorkingDir string
	Params     Params
}

type WorkingDirectory struct {
	ID   string
	Path string
}

type Stage string

const (
	StagePending       Stage = "pending"
	StageTrimming      Stage = "trimming"
	StageBeatDetecting Stage = "beat_detecting"
	StagePlanning      Stage = "planning"
	StageExtracting    Stage = "extracting"
	StageAssembling    Stage = "assembling"
	StageSucceeded     Stage = "succeeded"
	StageFailed        Stage = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// Indeterminate marks an Event without a known completion percentage.
const Indeterminate = -1.0

// Event is one entry of a job's progress stream.
type Event struct {
	JobID   string    `json:"job_id"`
	Stage   Stage     `json:"stage"`
	Percent float64   `json:"percent"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

type JobResult struct {
	JobID           string
	VideoPath       string
	AudioPath       string
	OutputPath      string
	ProcessedPath   string
	Stage           Stage
	Err             error
	SegmentsPlanned int
	Segments        int
	TargetDuration  float64
	Started         time.Time
	Finished        time.Time
}

// OK reports whether the job produced its output.
func (r JobResult) OK() bool { return r.Err == nil && r.Stage == StageSucceeded }
