package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Options struct {
	Console  Console
	Reporter Reporter
}

// Run executes steps in order. Each step is prompted (when it has prompts),
// then checked with IsSkip, then run. The first Failed result stops the plan
// and no results are returned.
func Run(ctx context.Context, logger *slog.Logger, steps []Step, opts Options) (Results, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}

	keys, err := stepKeys(steps)
	if err != nil {
		return nil, err
	}

	results := make(Results, len(steps))
	total := len(steps)
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("plan interrupted before %q: %w", step.Name(), err)
		}
		key := keys[i]
		logger.Info("step start", "step", step.Name(), "key", key, "progress", fmt.Sprintf("[%d/%d]", i+1, total))
		reporter.StepStarted(i+1, total, step)
		started := time.Now()

		if step.HasPrompts() {
			if opts.Console == nil {
				return nil, fmt.Errorf("step %q needs input but no console is available", step.Name())
			}
			reporter.Pause()
			err := step.Prompt(ctx, opts.Console)
			reporter.Resume()
			if err != nil {
				res := Failed(err)
				reporter.StepFinished(step, res, time.Since(started))
				return nil, &StepError{Step: step.Name(), Key: key, Phase: "prompt", Result: res}
			}
		}

		skip := step.IsSkip(ctx, reporter)
		switch skip.Kind {
		case ResultSkipped:
			logger.Debug("step skipped", "step", step.Name(), "message", skip.Message)
			results[key] = skip
			reporter.StepFinished(step, skip, time.Since(started))
			continue
		case ResultFailed:
			logger.Warn("step check failed", "step", step.Name(), "message", skip.Message)
			reporter.StepFinished(step, skip, time.Since(started))
			return nil, &StepError{Step: step.Name(), Key: key, Phase: "is_skip", Result: skip}
		}

		res := step.Run(ctx, reporter)
		results[key] = res
		d := time.Since(started)
		reporter.StepFinished(step, res, d)
		if res.Kind == ResultFailed {
			logger.Warn("step failed", "step", step.Name(), "duration", d.String(), "message", res.Message)
			return nil, &StepError{Step: step.Name(), Key: key, Phase: "run", Result: res}
		}
		logger.Debug("step done", "step", step.Name(), "duration", d.String())
	}

	return results, nil
}

func stepKeys(steps []Step) ([]string, error) {
	keys := make([]string, len(steps))
	seen := make(map[string]string, len(steps))
	for i, step := range steps {
		key := KeyOf(step)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q both resolve to %s", ErrDuplicateStepKey, prev, step.Name(), key)
		}
		seen[key] = step.Name()
		keys[i] = key
	}
	return keys, nil
}
