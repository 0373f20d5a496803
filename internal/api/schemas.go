package api

import (
	"time"

	"github.com/forPelevin/automv/internal/ledger"
	"github.com/forPelevin/automv/internal/types"
)

type HealthResponse struct {
	Status       string `json:"status"`
	UptimeS      int64  `json:"uptime_s"`
	BatchRunning bool   `json:"batch_running"`
	Ledger       bool   `json:"ledger"`
}

type JobsResponse struct {
	Jobs []ledger.Entry `json:"jobs"`
}

type JobResponse struct {
	ledger.Entry
	LastEvent *types.Event `json:"last_event,omitempty"`
}

// BatchRequest overrides the configured folders and parameters. Omitted
// fields keep their configured values.
type BatchRequest struct {
	VideoDir     string   `json:"video_dir,omitempty"`
	AudioDir     string   `json:"audio_dir,omitempty"`
	ProcessedDir string   `json:"processed_dir,omitempty"`
	OutDir       string   `json:"out_dir,omitempty"`
	OffsetBegin  *float64 `json:"offset_begin,omitempty"`
	OffsetEnd    *float64 `json:"offset_end,omitempty"`
	ClipFactor   *int     `json:"clip_factor,omitempty"`
	Seed         uint64   `json:"seed,omitempty"`
}

type BatchStartedResponse struct {
	BatchID string `json:"batch_id"`
}

type BatchStatusResponse struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Error      string              `json:"error,omitempty"`
	Results    []JobResultResponse `json:"results"`
}

type JobResultResponse struct {
	JobID         string  `json:"job_id"`
	VideoPath     string  `json:"video_path"`
	AudioPath     string  `json:"audio_path"`
	OutputPath    string  `json:"output_path,omitempty"`
	ProcessedPath string  `json:"processed_path,omitempty"`
	Stage         string  `json:"stage"`
	FailedStage   string  `json:"failed_stage,omitempty"`
	Error         string  `json:"error,omitempty"`
	Segments      int     `json:"segments"`
	DurationS     float64 `json:"duration_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ResultToResponse(r types.JobResult) JobResultResponse {
	resp := JobResultResponse{
		JobID:         r.JobID,
		VideoPath:     r.VideoPath,
		AudioPath:     r.AudioPath,
		OutputPath:    r.OutputPath,
		ProcessedPath: r.ProcessedPath,
		Stage:         string(r.Stage),
		Segments:      r.Segments,
		DurationS:     r.TargetDuration,
	}
	if r.Err != nil {
		resp.FailedStage = string(types.StageOf(r.Err))
		resp.Error = r.Err.Error()
	}
	return resp
}
