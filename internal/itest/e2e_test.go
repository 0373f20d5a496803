//go:build integration

package itest

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestE2E_Run(t *testing.T) {
	requireTools(t)
	repoRoot := mustRepoRoot(t)

	tmp := t.TempDir()
	video := filepath.Join(tmp, "clip.mp4")
	audio := filepath.Join(tmp, "click.wav")
	output := filepath.Join(tmp, "out", "cut.mp4")
	makeVideo(t, video, 20)
	makeClickTrack(t, audio, 12)

	res := runCLI(t, repoRoot, []string{
		"run",
		"--video", video,
		"--audio", audio,
		"--output", output,
		"--ob", "1", "--oe", "1", "--cf", "1",
		"--no-progress",
	}, isolatedEnv(tmp))
	if res.exitCode != 0 {
		t.Fatalf("run failed (exit %d):\n%s", res.exitCode, res.output)
	}
	if !strings.Contains(res.output, output) {
		t.Fatalf("expected output path in stdout\noutput:\n%s", res.output)
	}

	got, err := probeDurationSeconds(output)
	if err != nil {
		t.Fatalf("probe output: %v", err)
	}
	if got <= 0 || got > 12.5 {
		t.Fatalf("output duration = %.2fs, want (0, 12.5]", got)
	}
	streams, err := probeStreamTypes(output)
	if err != nil {
		t.Fatalf("probe streams: %v", err)
	}
	if !slices.Contains(streams, "video") || !slices.Contains(streams, "audio") {
		t.Fatalf("output streams = %v, want video and audio", streams)
	}

	// Single runs read the source in place.
	if _, err := os.Stat(video); err != nil {
		t.Fatalf("source video moved: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(tmp, "work"))
	if len(entries) != 0 {
		t.Fatalf("working directory not cleaned: %d entries left", len(entries))
	}
}

func TestE2E_Batch(t *testing.T) {
	requireTools(t)
	repoRoot := mustRepoRoot(t)

	tmp := t.TempDir()
	videoDir := filepath.Join(tmp, "input", "video")
	audioDir := filepath.Join(tmp, "input", "audio")
	processed := filepath.Join(videoDir, "processed")
	outDir := filepath.Join(tmp, "output")

	makeVideo(t, filepath.Join(videoDir, "first.mp4"), 15)
	makeVideo(t, filepath.Join(videoDir, "second.mp4"), 15)
	// Too short for the offsets below; must fail without stopping the batch.
	makeVideo(t, filepath.Join(videoDir, "short.mp4"), 1)
	makeClickTrack(t, filepath.Join(audioDir, "click.wav"), 8)

	res := runCLI(t, repoRoot, []string{
		"batch",
		"--video-dir", videoDir,
		"--audio-dir", audioDir,
		"--processed-dir", processed,
		"--out-dir", outDir,
		"--ob", "1", "--oe", "1",
		"--seed", "7",
		"--no-progress",
	}, isolatedEnv(tmp))
	if res.exitCode != 0 {
		t.Fatalf("batch failed (exit %d):\n%s", res.exitCode, res.output)
	}

	for _, name := range []string{"first.mp4", "second.mp4"} {
		if _, err := os.Stat(filepath.Join(processed, name)); err != nil {
			t.Fatalf("%s not moved to processed: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(videoDir, "short.mp4")); err != nil {
		t.Fatalf("failed video not returned to the input folder: %v", err)
	}

	outs, err := filepath.Glob(filepath.Join(outDir, "*.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("got %d outputs, want 2: %v", len(outs), outs)
	}
	for _, o := range outs {
		if strings.HasPrefix(filepath.Base(o), ".") {
			t.Fatalf("partial output left behind: %s", o)
		}
	}

	hist := runCLI(t, repoRoot, []string{"history", "--limit", "10"}, isolatedEnv(tmp))
	if hist.exitCode != 0 {
		t.Fatalf("history failed:\n%s", hist.output)
	}
	for _, want := range []string{"first", "second", "short", "failed"} {
		if !strings.Contains(hist.output, want) {
			t.Fatalf("history missing %q\noutput:\n%s", want, hist.output)
		}
	}
}

// isolatedEnv keeps working directories and the ledger inside tmp.
func isolatedEnv(tmp string) map[string]string {
	return map[string]string{
		"AUTOMV_WORK_DIR": filepath.Join(tmp, "work"),
		"AUTOMV_LEDGER":   filepath.Join(tmp, "automv.db"),
	}
}
