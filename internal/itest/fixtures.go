//go:build integration

package itest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// requireTools skips the test unless every external binary the cutter shells
// out to is on PATH.
func requireTools(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe", "aubio"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found on PATH", bin)
		}
	}
}

// makeVideo renders a silent test-pattern clip of the given length.
func makeVideo(t *testing.T, path string, seconds int) {
	t.Helper()
	ffmpeg(t,
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=size=320x240:rate=25:duration=%d", seconds),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
}

// makeClickTrack renders a 120 bpm click so beat detection has something
// unambiguous to find.
func makeClickTrack(t *testing.T, path string, seconds int) {
	t.Helper()
	ffmpeg(t,
		"-f", "lavfi",
		"-i", fmt.Sprintf("aevalsrc='if(lt(mod(t,0.5),0.03),sin(2*PI*880*t),0)':s=44100:d=%d", seconds),
		path,
	)
}

func ffmpeg(t *testing.T, args ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(args[len(args)-1]), 0o755); err != nil {
		t.Fatalf("mkdir fixture dir: %v", err)
	}
	cmd := exec.Command("ffmpeg", append([]string{"-y", "-v", "error"}, args...)...)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}
