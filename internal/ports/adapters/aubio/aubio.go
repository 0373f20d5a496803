package aubio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/automv/internal/types"
)

// WavConverter produces the mono WAV that aubio reads.
type WavConverter interface {
	ConvertToWav(ctx context.Context, in, outWav string) error
}

type Adapter struct {
	bin  string
	conv WavConverter
}

func New(binPath string, conv WavConverter) *Adapter {
	if binPath == "" {
		binPath = "aubio"
	}
	return &Adapter{bin: binPath, conv: conv}
}

// DetectBeats converts audioPath to a temporary WAV inside workDir and runs
// `aubio beat` over it. The WAV is removed before returning.
func (a *Adapter) DetectBeats(ctx context.Context, audioPath, workDir string) (types.BeatTimeline, error) {
	wav := filepath.Join(workDir, "beats_audio.wav")
	if err := a.conv.ConvertToWav(ctx, audioPath, wav); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBeatDetection, err)
	}
	defer os.Remove(wav)

	cmd := exec.CommandContext(ctx, a.bin, "beat", wav)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: aubio beat: %w\n%s", types.ErrBeatDetection, err, stderr.String())
	}
	beats, err := parseBeats(string(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBeatDetection, err)
	}
	return beats, nil
}

// parseBeats reads one timestamp in seconds per non-empty line.
func parseBeats(out string) (types.BeatTimeline, error) {
	var beats types.BeatTimeline
	for i, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("parse aubio line %d %q: %w", i+1, line, err)
		}
		beats = append(beats, v)
	}
	return beats, nil
}
