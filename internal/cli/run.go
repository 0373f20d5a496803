package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/automv/internal/pipeline"
	"github.com/forPelevin/automv/internal/types"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Cut one video to the beat of one audio track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd)
		},
	}
	f := cmd.Flags()
	f.String("video", "", "Source video")
	f.String("audio", "", "Audio track")
	f.String("output", "", "Output file (default <out-dir>/<title>_<job id>.mp4)")
	f.String("out-dir", "", "Output directory when --output is not set (default paths.out_dir)")
	addParamFlags(cmd)
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func addParamFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("ob", 0, "Seconds cut from the start of the video (default params.offset_begin)")
	f.Float64("oe", 0, "Seconds cut from the end of the video (default params.offset_end)")
	f.Int("cf", 0, "Clip factor: beats skipped per interval (default params.clip_factor)")
}

// params starts from the config file and applies only the flags the user set.
func (a *app) params(cmd *cobra.Command) types.Params {
	p := a.cfg.JobParams()
	f := cmd.Flags()
	if f.Changed("ob") {
		p.OffsetBegin, _ = f.GetFloat64("ob")
	}
	if f.Changed("oe") {
		p.OffsetEnd, _ = f.GetFloat64("oe")
	}
	if f.Changed("cf") {
		p.ClipFactor, _ = f.GetInt("cf")
	}
	return p
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) run(cmd *cobra.Command) error {
	video, _ := cmd.Flags().GetString("video")
	audio, _ := cmd.Flags().GetString("audio")
	output, _ := cmd.Flags().GetString("output")
	outDir, _ := cmd.Flags().GetString("out-dir")
	if outDir == "" {
		outDir = a.cfg.Paths.OutDir
	}
	params := a.params(cmd)
	if err := params.Validate(); err != nil {
		return err
	}

	absVideo, err := filepath.Abs(video)
	if err != nil {
		return err
	}
	absAudio, err := filepath.Abs(audio)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	pc := a.pipelineConfig()
	store, closeStore := a.recorderOrNil()
	defer closeStore()
	if store != nil {
		pc.Recorder = store
	}
	pc.Progress = observe(a.progressFor(cmd.ErrOrStderr()))

	p, err := pipeline.New(pc)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	res, err := p.RunJob(ctx, pipeline.JobInput{
		VideoPath:  absVideo,
		AudioPath:  absAudio,
		OutputPath: output,
		OutDir:     outDir,
		Params:     params,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
	return nil
}
