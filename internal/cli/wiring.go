package cli

import (
	"io"

	"github.com/forPelevin/automv/internal/ledger"
	"github.com/forPelevin/automv/internal/logging"
	"github.com/forPelevin/automv/internal/pipeline"
	"github.com/forPelevin/automv/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/automv/internal/types"
)

func (a *app) pipelineConfig() pipeline.Config {
	c := a.cfg
	return pipeline.Config{
		FFmpegPath:  c.Tools.FFmpeg,
		FFprobePath: c.Tools.FFprobe,
		AubioPath:   c.Tools.Aubio,
		Profile: ffmpeg.Profile{
			SegmentPreset: c.Encoding.SegmentPreset,
			MuxPreset:     c.Encoding.MuxPreset,
			MuxCRF:        c.Encoding.MuxCRF,
			AudioBitrate:  c.Encoding.AudioBitrate,
		},
		WorkDir:         c.Paths.WorkDir,
		KeepWorkDir:     c.Job.KeepWorkDir,
		StaleWorkDirAge: c.StaleWorkDirAge(),
		ExtractWorkers:  c.Job.ExtractWorkers,
		BatchWorkers:    c.Batch.Workers,
		CallTimeout:     c.StageTimeout(),
		Log:             a.log,
	}
}

// openLedger returns nil when the ledger is disabled. A ledger that fails to
// open is logged and treated as disabled for commands that only record.
func (a *app) openLedger() (*ledger.Store, error) {
	if a.cfg.Paths.Ledger == "" {
		return nil, nil
	}
	return ledger.Open(a.cfg.Paths.Ledger, a.log)
}

func (a *app) recorderOrNil() (*ledger.Store, func()) {
	store, err := a.openLedger()
	if err != nil {
		a.log.Warn().Err(err).Msg("job ledger unavailable, history will not be recorded")
		return nil, func() {}
	}
	if store == nil {
		return nil, func() {}
	}
	return store, func() { _ = store.Close() }
}

// progressFor returns a terminal progress renderer, or nil when progress is
// disabled or out is not a terminal.
func (a *app) progressFor(out io.Writer) *progressRenderer {
	if a.noProgress || !logging.IsTerminal(out) {
		return nil
	}
	return newProgressRenderer(out)
}

func observe(r *progressRenderer) func(types.Event) {
	if r == nil {
		return nil
	}
	return r.Observe
}
