package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/pipeline"
	"github.com/forPelevin/automv/internal/types"
)

var errBatchRunning = errors.New("a batch is already running")

// Batch statuses.
const (
	BatchRunning   = "running"
	BatchSucceeded = "succeeded"
	BatchFailed    = "failed"
)

// BatchRunner is satisfied by *pipeline.Pipeline.
type BatchRunner interface {
	RunBatch(ctx context.Context, in pipeline.BatchInput) ([]types.JobResult, error)
}

// batches runs at most one batch at a time in the background and keeps the
// status of the latest one.
type batches struct {
	runner BatchRunner
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *BatchStatusResponse
}

func newBatches(runner BatchRunner, log zerolog.Logger) *batches {
	ctx, cancel := context.WithCancel(context.Background())
	return &batches{runner: runner, log: log, ctx: ctx, cancel: cancel}
}

func (b *batches) start(in pipeline.BatchInput) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.Status == BatchRunning {
		return "", errBatchRunning
	}

	id := uuid.NewString()
	b.current = &BatchStatusResponse{
		ID:        id,
		Status:    BatchRunning,
		StartedAt: time.Now().UTC(),
		Results:   []JobResultResponse{},
	}
	in.OnResult = func(r types.JobResult) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.current != nil && b.current.ID == id {
			b.current.Results = append(b.current.Results, ResultToResponse(r))
		}
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		log := b.log.With().Str("batch_id", id).Logger()
		log.Info().Str("video_dir", in.VideoDir).Msg("batch accepted")
		_, err := b.runner.RunBatch(b.ctx, in)

		b.mu.Lock()
		defer b.mu.Unlock()
		now := time.Now().UTC()
		b.current.FinishedAt = &now
		if err != nil {
			b.current.Status = BatchFailed
			b.current.Error = err.Error()
			log.Error().Err(err).Msg("batch failed")
			return
		}
		b.current.Status = BatchSucceeded
	}()
	return id, nil
}

func (b *batches) status() (BatchStatusResponse, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return BatchStatusResponse{}, false
	}
	s := *b.current
	s.Results = append(make([]JobResultResponse, 0, len(b.current.Results)), b.current.Results...)
	return s, true
}

func (b *batches) running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil && b.current.Status == BatchRunning
}

// stop cancels a running batch and waits for it to return.
func (b *batches) stop() {
	b.cancel()
	b.wg.Wait()
}
