package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/forPelevin/automv/internal/types"
)

var stageLabels = map[types.Stage]string{
	types.StageTrimming:      "trimming",
	types.StageBeatDetecting: "detecting beats",
	types.StagePlanning:      "planning",
	types.StageExtracting:    "extracting",
	types.StageAssembling:    "assembling",
}

// progressRenderer draws one bar per stage of the job it is following: a
// percentage bar when the stage reports progress, a spinner otherwise. While
// a job is running, events from other jobs are ignored.
type progressRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	job   string
	stage types.Stage
	bar   *progressbar.ProgressBar
	stop  chan struct{}
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	return &progressRenderer{out: out}
}

func (p *progressRenderer) Observe(e types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job != "" && e.JobID != p.job {
		return
	}
	if e.Stage.Terminal() {
		p.closeBar()
		p.job = ""
		return
	}
	p.job = e.JobID

	if e.Stage != p.stage || p.bar == nil {
		p.closeBar()
		p.stage = e.Stage
		p.openBar(e)
	}
	if e.Percent >= 0 {
		_ = p.bar.Set(int(e.Percent))
	}
	if e.Message != "" {
		p.bar.Describe(p.describe(e))
	}
}

func (p *progressRenderer) describe(e types.Event) string {
	label := stageLabels[e.Stage]
	if label == "" {
		label = string(e.Stage)
	}
	if e.Message != "" {
		return fmt.Sprintf("%-16s %s", label, e.Message)
	}
	return label
}

func (p *progressRenderer) openBar(e types.Event) {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(p.describe(e)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionClearOnFinish(),
	}
	if e.Percent < 0 {
		p.bar = progressbar.NewOptions(-1, append(opts, progressbar.OptionSpinnerType(14))...)
		p.stop = make(chan struct{})
		go spin(p.bar, p.stop)
		return
	}
	p.bar = progressbar.NewOptions(100, opts...)
}

func (p *progressRenderer) closeBar() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	p.stage = ""
}

func spin(bar *progressbar.ProgressBar, stop <-chan struct{}) {
	t := time.NewTicker(120 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			_ = bar.Add(1)
		}
	}
}
