package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/automv/internal/ports"
	"github.com/forPelevin/automv/internal/types"
)

type extractCall struct {
	start    float64
	duration float64
	out      string
}

type fakeVideoTool struct {
	mu sync.Mutex

	durations map[string]float64 // keyed by base name
	failSegs  map[int]bool
	failMux   bool
	delay     func(start float64) time.Duration

	trims    int
	extracts []extractCall
	manifest string
	muxDur   float64
	muxOut   string
}

func (f *fakeVideoTool) ProbeDuration(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.durations[filepath.Base(path)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown %s", types.ErrProbe, path)
	}
	return d, nil
}

func (f *fakeVideoTool) TrimCopy(_ context.Context, _ string, _, _ float64, out string, progress ports.ProgressFunc) error {
	f.mu.Lock()
	f.trims++
	f.mu.Unlock()
	if progress != nil {
		progress(1)
	}
	return os.WriteFile(out, []byte("trimmed"), 0o644)
}

func (f *fakeVideoTool) ExtractSegment(_ context.Context, _ string, start, duration float64, out string) error {
	if f.delay != nil {
		time.Sleep(f.delay(start))
	}
	var idx int
	if _, err := fmt.Sscanf(filepath.Base(out), "segment_%d.mp4", &idx); err != nil {
		return err
	}
	f.mu.Lock()
	f.extracts = append(f.extracts, extractCall{start: start, duration: duration, out: out})
	fail := f.failSegs[idx]
	f.mu.Unlock()
	if fail {
		return errors.New("encoder exploded")
	}
	return os.WriteFile(out, []byte("seg"), 0o644)
}

func (f *fakeVideoTool) Concat(_ context.Context, manifest, out string) error {
	b, err := os.ReadFile(manifest)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.manifest = string(b)
	f.mu.Unlock()
	return os.WriteFile(out, []byte("silent"), 0o644)
}

func (f *fakeVideoTool) Mux(_ context.Context, _, _ string, duration float64, out string, _ ports.ProgressFunc) error {
	f.mu.Lock()
	f.muxDur = duration
	f.muxOut = out
	f.mu.Unlock()
	if err := os.WriteFile(out, []byte("partial"), 0o644); err != nil {
		return err
	}
	if f.failMux {
		return errors.New("mux failed")
	}
	return nil
}

func (f *fakeVideoTool) ConvertToWav(context.Context, string, string) error { return nil }

type fakeBeats struct {
	beats types.BeatTimeline
	err   error
}

func (f fakeBeats) DetectBeats(context.Context, string, string) (types.BeatTimeline, error) {
	return f.beats, f.err
}

type harness struct {
	video  *fakeVideoTool
	input  Input
	events []types.Event
}

func newHarness(t *testing.T, video *fakeVideoTool, p types.Params) *harness {
	t.Helper()
	tmp := t.TempDir()
	wd := filepath.Join(tmp, "work")
	if err := os.MkdirAll(wd, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := filepath.Join(tmp, "in.mkv")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	job, err := types.NewJob(types.WorkingDirectory{ID: "job1", Path: wd}, src, filepath.Join(tmp, "song.mp3"), filepath.Join(tmp, "out", "final.mp4"), p)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	h := &harness{video: video}
	h.input = Input{
		Job:      job,
		Log:      zerolog.Nop(),
		Progress: func(e types.Event) { h.events = append(h.events, e) },
	}
	return h
}

func (h *harness) stages() []types.Stage {
	var out []types.Stage
	for _, e := range h.events {
		if len(out) == 0 || out[len(out)-1] != e.Stage {
			out = append(out, e.Stage)
		}
	}
	return out
}

func TestRun_HappyPath(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 100, "trimmed.mkv": 90}}
	h := newHarness(t, video, types.Params{OffsetBegin: 4, OffsetEnd: 6, ClipFactor: 1})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 2, 3, 4, 5, 6, 7}}})

	res, err := uc.Run(context.Background(), h.input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.OutputPath != h.input.Job.OutputPath {
		t.Fatalf("unexpected output path %q", res.OutputPath)
	}
	if res.TrimmedDuration != 90 || res.Plan.TargetTotalDuration != 6 || len(res.Segments) != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if video.trims != 1 {
		t.Fatalf("expected one trim, got %d", video.trims)
	}

	wantStarts := []float64{0, 44, 88}
	if len(video.extracts) != len(wantStarts) {
		t.Fatalf("expected %d extracts, got %d", len(wantStarts), len(video.extracts))
	}
	for i, c := range video.extracts {
		if c.start != wantStarts[i] || c.duration != 2 {
			t.Fatalf("extract %d = %+v, want start %v duration 2", i, c, wantStarts[i])
		}
	}
	if video.muxDur != 6 {
		t.Fatalf("mux must truncate to the planned total, got %v", video.muxDur)
	}
	if filepath.Dir(video.muxOut) != filepath.Dir(h.input.Job.OutputPath) || video.muxOut == h.input.Job.OutputPath {
		t.Fatalf("mux must write a sibling partial file, got %s", video.muxOut)
	}

	if _, err := os.Stat(h.input.Job.OutputPath); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if _, err := os.Stat(video.muxOut); !os.IsNotExist(err) {
		t.Fatalf("partial file should be gone, stat err=%v", err)
	}
	for _, name := range []string{"segments.txt", "concat.mp4"} {
		if _, err := os.Stat(filepath.Join(h.input.Job.WorkingDir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed after assembly, stat err=%v", name, err)
		}
	}

	want := []types.Stage{
		types.StageTrimming, types.StageBeatDetecting, types.StagePlanning,
		types.StageExtracting, types.StageAssembling, types.StageSucceeded,
	}
	got := h.stages()
	if strings.Join(stageStrings(got), ",") != strings.Join(stageStrings(want), ",") {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestRun_InsufficientDuration(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 5}}
	h := newHarness(t, video, types.Params{OffsetBegin: 3, OffsetEnd: 3})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1}}})

	_, err := uc.Run(context.Background(), h.input)
	if !errors.Is(err, types.ErrInsufficientDuration) {
		t.Fatalf("expected ErrInsufficientDuration, got %v", err)
	}
	if types.StageOf(err) != types.StageTrimming {
		t.Fatalf("expected trimming stage, got %s", types.StageOf(err))
	}
	if video.trims != 0 {
		t.Fatalf("trim must not run")
	}
	if last := h.events[len(h.events)-1]; last.Stage != types.StageFailed {
		t.Fatalf("expected final failed event, got %+v", last)
	}
}

func TestRun_NotEnoughBeats(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 60, "trimmed.mkv": 60}}
	h := newHarness(t, video, types.Params{ClipFactor: 5})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 2}}})

	_, err := uc.Run(context.Background(), h.input)
	if !errors.Is(err, types.ErrNotEnoughBeats) {
		t.Fatalf("expected ErrNotEnoughBeats, got %v", err)
	}
	if len(video.extracts) != 0 {
		t.Fatalf("no segment should be extracted")
	}
}

func TestRun_BeatSourceErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		beats fakeBeats
	}{
		{"detector failed", fakeBeats{err: fmt.Errorf("%w: aubio missing", types.ErrBeatDetection)}},
		{"not increasing", fakeBeats{beats: types.BeatTimeline{0, 2, 1, 3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 60, "trimmed.mkv": 60}}
			h := newHarness(t, video, types.Params{})
			_, err := New(Deps{Video: video, Beats: tc.beats}).Run(context.Background(), h.input)
			if !errors.Is(err, types.ErrBeatDetection) {
				t.Fatalf("expected ErrBeatDetection, got %v", err)
			}
			if types.StageOf(err) != types.StageBeatDetecting {
				t.Fatalf("unexpected stage %s", types.StageOf(err))
			}
		})
	}
}

func TestRun_AllSegmentsFail(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{
		durations: map[string]float64{"in.mkv": 60, "trimmed.mkv": 60},
		failSegs:  map[int]bool{0: true, 1: true, 2: true},
	}
	h := newHarness(t, video, types.Params{})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 2, 3}}})

	_, err := uc.Run(context.Background(), h.input)
	if !errors.Is(err, types.ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
	if video.muxOut != "" {
		t.Fatalf("mux must not run")
	}
	if _, err := os.Stat(h.input.Job.OutputPath); !os.IsNotExist(err) {
		t.Fatalf("no output expected, stat err=%v", err)
	}
}

func TestRun_SkipsFailedSegments(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{
		durations: map[string]float64{"in.mkv": 60, "trimmed.mkv": 60},
		failSegs:  map[int]bool{1: true},
	}
	h := newHarness(t, video, types.Params{})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 2, 3}}})

	res, err := uc.Run(context.Background(), h.input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Segments) != 2 || res.Segments[0].SequenceIndex != 0 || res.Segments[1].SequenceIndex != 2 {
		t.Fatalf("unexpected surviving segments: %+v", res.Segments)
	}
	if strings.Contains(video.manifest, "segment_1.mp4") {
		t.Fatalf("failed segment leaked into manifest:\n%s", video.manifest)
	}
	if video.muxDur != 3 {
		t.Fatalf("target duration must still cover every planned interval, got %v", video.muxDur)
	}
}

func TestRun_RejectsSegmentsOutsideVideo(t *testing.T) {
	t.Parallel()

	// Second interval (5s) is longer than the 4s trimmed video: its sweep
	// start is negative and must be skipped without failing the job.
	video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 4, "trimmed.mkv": 4}}
	h := newHarness(t, video, types.Params{})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 6}}})

	res, err := uc.Run(context.Background(), h.input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].SequenceIndex != 0 {
		t.Fatalf("expected only the first segment, got %+v", res.Segments)
	}
	if len(video.extracts) != 1 {
		t.Fatalf("out-of-range segment must not reach the encoder, got %d calls", len(video.extracts))
	}
}

func TestRun_ParallelExtractionKeepsOrder(t *testing.T) {
	t.Parallel()

	// Later segments finish first.
	video := &fakeVideoTool{
		durations: map[string]float64{"in.mkv": 100, "trimmed.mkv": 100},
		delay: func(start float64) time.Duration {
			return time.Duration(100-start) * 200 * time.Microsecond
		},
	}
	h := newHarness(t, video, types.Params{})
	h.input.ExtractWorkers = 4
	beats := make(types.BeatTimeline, 9)
	for i := range beats {
		beats[i] = float64(i)
	}
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: beats}})

	var mu sync.Mutex
	h.input.Progress = func(e types.Event) {
		mu.Lock()
		h.events = append(h.events, e)
		mu.Unlock()
	}

	res, err := uc.Run(context.Background(), h.input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, s := range res.Segments {
		if s.SequenceIndex != i {
			t.Fatalf("segment %d has sequence index %d", i, s.SequenceIndex)
		}
	}
	lines := strings.Split(strings.TrimSpace(video.manifest), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 manifest lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.HasSuffix(line, fmt.Sprintf("segment_%d.mp4'", i)) {
			t.Fatalf("manifest line %d out of order: %s", i, line)
		}
	}
}

func TestRun_MuxFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 60, "trimmed.mkv": 60}, failMux: true}
	h := newHarness(t, video, types.Params{})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 2}}})

	_, err := uc.Run(context.Background(), h.input)
	if !errors.Is(err, types.ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if _, err := os.Stat(h.input.Job.OutputPath); !os.IsNotExist(err) {
		t.Fatalf("output must not exist, stat err=%v", err)
	}
	if _, err := os.Stat(video.muxOut); !os.IsNotExist(err) {
		t.Fatalf("partial must be removed, stat err=%v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{durations: map[string]float64{"in.mkv": 60, "trimmed.mkv": 60}}
	h := newHarness(t, video, types.Params{})
	uc := New(Deps{Video: video, Beats: fakeBeats{beats: types.BeatTimeline{0, 1, 2}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := uc.Run(ctx, h.input)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if video.trims != 0 {
		t.Fatalf("no stage should run after cancellation")
	}
}

func TestWriteConcatManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "list.txt")
	segs := []types.ExtractedSegment{
		{Path: filepath.Join(dir, "a.mp4")},
		{Path: filepath.Join(dir, "it's.mp4")},
	}
	if err := writeConcatManifest(p, segs); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", b)
	}
	if want := "file '" + filepath.ToSlash(segs[0].Path) + "'"; lines[0] != want {
		t.Fatalf("line 0 = %q, want %q", lines[0], want)
	}
	if !strings.HasSuffix(lines[1], `it'\''s.mp4'`) {
		t.Fatalf("single quote not escaped: %s", lines[1])
	}
}

func TestPartialPath(t *testing.T) {
	got := partialPath(filepath.Join("out", "clip_1.mp4"), "42_abc")
	want := filepath.Join("out", ".clip_1.partial-42_abc.mp4")
	if got != want {
		t.Fatalf("partialPath = %q, want %q", got, want)
	}
}

func stageStrings(in []types.Stage) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
