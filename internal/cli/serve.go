package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/automv/internal/api"
	"github.com/forPelevin/automv/internal/pipeline"
)

const shutdownGrace = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve job history and batch control over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default api.bind)")
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.API.Bind
	}

	store, err := a.openLedger()
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	tracker := api.NewTracker()

	pc := a.pipelineConfig()
	pc.Progress = tracker.Observe
	var jobs api.JobStore
	if store != nil {
		defer store.Close()
		pc.Recorder = store
		jobs = store
	}
	p, err := pipeline.New(pc)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	srv := api.NewServer(api.ServerConfig{
		Addr:    addr,
		Jobs:    jobs,
		Runner:  p,
		Tracker: tracker,
		Batch:   a.batchInput(),
		Logger:  a.log,
	})

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
