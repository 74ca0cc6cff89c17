package plan

import "time"

// Reporter presents plan progress. Pause and Resume bracket prompts so a
// live indicator does not draw over user input.
type Reporter interface {
	Status
	StepStarted(index, total int, step Step)
	StepFinished(step Step, res Result, elapsed time.Duration)
	Pause()
	Resume()
}

type NopReporter struct{}

func (NopReporter) Update(string)                            {}
func (NopReporter) StepStarted(int, int, Step)               {}
func (NopReporter) StepFinished(Step, Result, time.Duration) {}
func (NopReporter) Pause()                                   {}
func (NopReporter) Resume()                                  {}
