package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/automv/internal/pipeline"
	"github.com/forPelevin/automv/internal/types"
)

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Cut every video in a folder to a random track from another folder",
		Long: "Pairs each video in the video folder with a randomly chosen audio track and cuts\n" +
			"them one by one. Originals move to the processed folder once their cut is written;\n" +
			"a failed video stays where it was. Per-video failures do not stop the batch.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.batch(cmd)
		},
	}
	f := cmd.Flags()
	f.String("video-dir", "", "Input video folder (default paths.video_dir)")
	f.String("audio-dir", "", "Input audio folder (default paths.audio_dir)")
	f.String("processed-dir", "", "Where originals go after a successful cut (default paths.processed_dir)")
	f.String("out-dir", "", "Output folder (default paths.out_dir)")
	f.Int("workers", 0, "Videos processed in parallel (default batch.workers)")
	f.Uint64("seed", 0, "Seed for the audio pick, 0 for random (default batch.seed)")
	addParamFlags(cmd)
	return cmd
}

func (a *app) batch(cmd *cobra.Command) error {
	in := a.batchInput()
	f := cmd.Flags()
	for flag, dst := range map[string]*string{
		"video-dir":     &in.VideoDir,
		"audio-dir":     &in.AudioDir,
		"processed-dir": &in.ProcessedDir,
		"out-dir":       &in.OutDir,
	} {
		if v, _ := f.GetString(flag); v != "" {
			*dst = v
		}
	}
	if f.Changed("seed") {
		in.Seed, _ = f.GetUint64("seed")
	}
	in.Params = a.params(cmd)

	pc := a.pipelineConfig()
	if f.Changed("workers") {
		pc.BatchWorkers, _ = f.GetInt("workers")
		if pc.BatchWorkers < 1 {
			return fmt.Errorf("--workers must be >= 1")
		}
	}
	store, closeStore := a.recorderOrNil()
	defer closeStore()
	if store != nil {
		pc.Recorder = store
	}
	// Bars only make sense for one job at a time.
	if pc.BatchWorkers == 1 {
		pc.Progress = observe(a.progressFor(cmd.ErrOrStderr()))
	}

	p, err := pipeline.New(pc)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	in.OnResult = func(r types.JobResult) {
		if r.OK() {
			a.log.Info().Str("video", r.VideoPath).Str("output", r.OutputPath).Msg("video done")
		}
	}
	results, err := p.RunBatch(ctx, in)
	if len(results) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), renderBatchResults(results))
	}
	return err
}

func (a *app) batchInput() pipeline.BatchInput {
	return pipeline.BatchInput{
		VideoDir:     a.cfg.Paths.VideoDir,
		AudioDir:     a.cfg.Paths.AudioDir,
		ProcessedDir: a.cfg.Paths.ProcessedDir,
		OutDir:       a.cfg.Paths.OutDir,
		Params:       a.cfg.JobParams(),
		Seed:         a.cfg.Batch.Seed,
	}
}
