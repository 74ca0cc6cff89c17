package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
	"github.com/Bibi40k/sunbeam-bootstrap/pkg/model"
)

const spinnerInterval = 100 * time.Millisecond

var (
	doneMark = color.New(color.FgGreen).Sprint("✓")
	skipMark = color.New(color.FgYellow).Sprint("↷")
	failMark = color.New(color.FgRed).Sprint("✗")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
	dim      = color.New(color.FgHiBlack).SprintFunc()
	stepHead = color.New(color.FgCyan).SprintFunc()
)

// humanReporter shows a spinner for the running step and one marker line
// per finished step.
type humanReporter struct {
	w io.Writer

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	desc  string
	stop  chan struct{}
	spins sync.WaitGroup
}

func newHumanReporter(w io.Writer) *humanReporter {
	return &humanReporter{w: w}
}

func (r *humanReporter) StepStarted(index, total int, step plan.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pct := (index - 1) * 100 / total
	fmt.Fprintf(r.w, "%s %s %s\n", stepHead(fmt.Sprintf("[%d/%d]", index, total)), step.Name(), dim(fmt.Sprintf("(%d%%)", pct)))
	r.desc = step.Description()
	r.startLocked()
}

func (r *humanReporter) Update(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.desc = message
	if r.bar != nil {
		r.bar.Describe(message)
	}
}

func (r *humanReporter) StepFinished(_ plan.Step, res plan.Result, elapsed time.Duration) {
	r.mu.Lock()
	r.stopLocked()
	r.mu.Unlock()

	d := elapsed.Truncate(time.Millisecond)
	switch res.Kind {
	case plan.ResultSkipped:
		fmt.Fprintf(r.w, "  %s skipped %s\n", skipMark, dim(skipReason(res)))
	case plan.ResultFailed:
		fmt.Fprintf(r.w, "  %s failed in %s\n", failMark, d)
	default:
		fmt.Fprintf(r.w, "  %s done in %s\n", doneMark, d)
	}
}

func (r *humanReporter) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *humanReporter) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked()
}

func (r *humanReporter) startLocked() {
	if r.bar != nil {
		return
	}
	r.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription(r.desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	r.stop = make(chan struct{})
	bar, stop := r.bar, r.stop
	r.spins.Add(1)
	go func() {
		defer r.spins.Done()
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-stop:
				return
			}
		}
	}()
}

func (r *humanReporter) stopLocked() {
	if r.bar == nil {
		return
	}
	close(r.stop)
	r.spins.Wait()
	_ = r.bar.Clear()
	r.bar = nil
}

func skipReason(res plan.Result) string {
	if res.Message == "" {
		return "(already done)"
	}
	return "(" + res.Message + ")"
}

// logReporter reports progress as log records for --log-format json.
type logReporter struct {
	logger *slog.Logger
}

func (r logReporter) Update(message string) {
	r.logger.Debug("status", "message", message)
}

func (r logReporter) StepStarted(index, total int, step plan.Step) {
	r.logger.Info("progress",
		"step", fmt.Sprintf("[%d/%d]", index, total),
		"percent", fmt.Sprintf("%d%%", (index-1)*100/total),
		"current", step.Name(),
		"description", step.Description(),
	)
}

func (r logReporter) StepFinished(step plan.Step, res plan.Result, elapsed time.Duration) {
	r.logger.Info("step finished",
		"step", step.Name(),
		"result", res.Kind.String(),
		"duration", elapsed.String(),
	)
}

func (logReporter) Pause()  {}
func (logReporter) Resume() {}

// checkPrinter echoes each preflight check as it starts.
type checkPrinter struct {
	w io.Writer
}

func newCheckPrinter(w io.Writer) checkPrinter { return checkPrinter{w: w} }

func (p checkPrinter) Update(message string) {
	fmt.Fprintf(p.w, "  %s\n", dim(message))
}

func printWarnings(w io.Writer, checks []plan.Check) {
	for _, c := range checks {
		if wr, ok := c.(plan.Warner); ok && wr.Warning() != "" {
			fmt.Fprintf(w, "  %s %s\n", warnMark, wr.Warning())
		}
	}
}

// recordingReporter forwards to next and keeps a model.PlanResult of the
// finished steps for --report.
type recordingReporter struct {
	plan.Reporter
	result model.PlanResult
}

func newRecordingReporter(next plan.Reporter, command, deployment string) *recordingReporter {
	return &recordingReporter{
		Reporter: next,
		result: model.PlanResult{
			Command:    command,
			Deployment: deployment,
			Status:     "running",
			StartedAt:  time.Now().UTC(),
			Steps:      []model.StepResult{},
		},
	}
}

func (r *recordingReporter) StepFinished(step plan.Step, res plan.Result, elapsed time.Duration) {
	status := model.StepStatusSuccess
	switch res.Kind {
	case plan.ResultSkipped:
		status = model.StepStatusSkipped
	case plan.ResultFailed:
		status = model.StepStatusFailed
	}
	r.result.Steps = append(r.result.Steps, model.StepResult{
		Name:     step.Name(),
		Status:   status,
		Duration: elapsed,
		Message:  res.Message,
	})
	r.Reporter.StepFinished(step, res, elapsed)
}

// write finishes the record with the plan outcome and stores it at path.
func (r *recordingReporter) write(path string, runErr error) error {
	r.result.Finish(runErr, time.Now())
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := printJSON(f, r.result); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
