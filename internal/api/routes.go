package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forPelevin/automv/internal/ledger"
)

const maxJobsLimit = 500

// JobStore is the read side of the job ledger.
type JobStore interface {
	List(ctx context.Context, limit int) ([]ledger.Entry, error)
	Get(ctx context.Context, id string) (ledger.Entry, error)
}

func NewRouter(cfg ServerConfig, b *batches) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg, b))
	r.Get("/jobs", listJobsHandler(cfg))
	r.Get("/jobs/{id}", getJobHandler(cfg))
	r.Post("/batch", startBatchHandler(cfg, b))
	r.Get("/batch", batchStatusHandler(b))

	return r
}

func healthHandler(cfg ServerConfig, b *batches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:       "ok",
			UptimeS:      int64(time.Since(cfg.StartTime).Seconds()),
			BatchRunning: b.running(),
			Ledger:       cfg.Jobs != nil,
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Jobs == nil {
			WriteError(w, http.StatusServiceUnavailable, "job ledger is disabled", "LEDGER_DISABLED")
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxJobsLimit {
				WriteError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}

		jobs, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error().Err(err).Msg("list jobs")
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}
		if jobs == nil {
			jobs = []ledger.Entry{}
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		resp := JobResponse{Entry: ledger.Entry{ID: id}}
		found := false

		if cfg.Jobs != nil {
			e, err := cfg.Jobs.Get(r.Context(), id)
			switch {
			case err == nil:
				resp.Entry = e
				found = true
			case !errors.Is(err, ledger.ErrNotFound):
				cfg.Logger.Error().Err(err).Str("job_id", id).Msg("get job")
				WriteError(w, http.StatusInternalServerError, "failed to read job", "INTERNAL_ERROR")
				return
			}
		}
		if cfg.Tracker != nil {
			if ev, ok := cfg.Tracker.Last(id); ok {
				resp.LastEvent = &ev
				found = true
			}
		}
		if !found {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func startBatchHandler(cfg ServerConfig, b *batches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		in := cfg.Batch
		if req.VideoDir != "" {
			in.VideoDir = req.VideoDir
		}
		if req.AudioDir != "" {
			in.AudioDir = req.AudioDir
		}
		if req.ProcessedDir != "" {
			in.ProcessedDir = req.ProcessedDir
		}
		if req.OutDir != "" {
			in.OutDir = req.OutDir
		}
		if req.OffsetBegin != nil {
			in.Params.OffsetBegin = *req.OffsetBegin
		}
		if req.OffsetEnd != nil {
			in.Params.OffsetEnd = *req.OffsetEnd
		}
		if req.ClipFactor != nil {
			in.Params.ClipFactor = *req.ClipFactor
		}
		if req.Seed != 0 {
			in.Seed = req.Seed
		}
		if err := in.Params.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAMS")
			return
		}

		id, err := b.start(in)
		if errors.Is(err, errBatchRunning) {
			WriteError(w, http.StatusConflict, err.Error(), "BATCH_RUNNING")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusAccepted, BatchStartedResponse{BatchID: id})
	}
}

func batchStatusHandler(b *batches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := b.status()
		if !ok {
			WriteError(w, http.StatusNotFound, "no batch has run", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}
