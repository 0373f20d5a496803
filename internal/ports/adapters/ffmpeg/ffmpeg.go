package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/ports"
	"github.com/forPelevin/automv/internal/types"
)

// Profile holds the fixed encode settings. Every segment of a job must share
// one profile so the concat step can stream-copy.
type Profile struct {
	SegmentPreset string
	MuxPreset     string
	MuxCRF        int
	AudioBitrate  string
}

func DefaultProfile() Profile {
	return Profile{
		SegmentPreset: "ultrafast",
		MuxPreset:     "fast",
		MuxCRF:        22,
		AudioBitrate:  "192k",
	}
}

type Adapter struct {
	ffmpeg  string
	ffprobe string
	profile Profile
	log     zerolog.Logger
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, profile: DefaultProfile(), log: zerolog.Nop()}
}

// WithProfile replaces the encode profile; empty fields keep their defaults.
func (a *Adapter) WithProfile(p Profile) *Adapter {
	def := DefaultProfile()
	if p.SegmentPreset == "" {
		p.SegmentPreset = def.SegmentPreset
	}
	if p.MuxPreset == "" {
		p.MuxPreset = def.MuxPreset
	}
	if p.MuxCRF <= 0 {
		p.MuxCRF = def.MuxCRF
	}
	if p.AudioBitrate == "" {
		p.AudioBitrate = def.AudioBitrate
	}
	a.profile = p
	return a
}

func (a *Adapter) WithLogger(l zerolog.Logger) *Adapter {
	a.log = l.With().Str("component", "ffmpeg").Logger()
	return a
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w: %w\n%s", types.ErrProbe, err, string(b))
	}
	return parseDuration(string(b))
}

func (a *Adapter) TrimCopy(ctx context.Context, in string, start, duration float64, out string, progress ports.ProgressFunc) error {
	return a.run(ctx, "trim", duration, progress, trimArgs(in, start, duration, out))
}

func (a *Adapter) ExtractSegment(ctx context.Context, in string, start, duration float64, out string) error {
	return a.run(ctx, "extract segment", duration, nil, segmentArgs(in, start, duration, out, a.profile))
}

func (a *Adapter) Concat(ctx context.Context, manifest, out string) error {
	return a.run(ctx, "concat", 0, nil, concatArgs(manifest, out))
}

func (a *Adapter) Mux(ctx context.Context, video, audio string, duration float64, out string, progress ports.ProgressFunc) error {
	return a.run(ctx, "mux", duration, progress, muxArgs(video, audio, duration, out, a.profile))
}

func (a *Adapter) ConvertToWav(ctx context.Context, in, outWav string) error {
	return a.run(ctx, "convert audio", 0, nil, []string{
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "44100",
		"-f", "wav",
		outWav,
	})
}

func trimArgs(in string, start, duration float64, out string) []string {
	return []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", in,
		"-t", fmtSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		out,
	}
}

func segmentArgs(in string, start, duration float64, out string, p Profile) []string {
	return []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", in,
		"-t", fmtSeconds(duration),
		"-an",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p",
		"-c:v", "libx264",
		"-preset", p.SegmentPreset,
		out,
	}
}

func concatArgs(manifest, out string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		out,
	}
}

func muxArgs(video, audio string, duration float64, out string, p Profile) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-t", fmtSeconds(duration),
		"-c:v", "libx264",
		"-preset", p.MuxPreset,
		"-crf", strconv.Itoa(p.MuxCRF),
		"-c:a", "aac",
		"-b:a", p.AudioBitrate,
		"-movflags", "+faststart",
		out,
	}
}

// run executes ffmpeg with the machine-readable progress protocol on stdout.
// expected is the output length in seconds used to turn out_time into a
// fraction; 0 disables progress reporting.
func (a *Adapter) run(ctx context.Context, op string, expected float64, progress ports.ProgressFunc, args []string) error {
	full := append([]string{"-hide_banner", "-nostats", "-loglevel", "error", "-progress", "pipe:1"}, args...)
	a.log.Debug().Str("op", op).Strs("args", full).Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, a.ffmpeg, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: stdout pipe: %w", op, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w", op, err)
	}

	readProgress(stdout, expected, progress)

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg %s: %w", op, errors.Join(ctxErr, err))
		}
		return fmt.Errorf("ffmpeg %s: %w\n%s", op, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse duration %q: %w", types.ErrProbe, s, err)
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", types.ErrProbe, s)
	}
	return sec, nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 6, 64)
}
