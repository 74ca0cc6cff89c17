package plan

import "context"

// Status receives progress text while a step or check is running.
type Status interface {
	Update(message string)
}

// Console is the interactive input used by steps during their prompt phase.
type Console interface {
	Ask(question, def string) (string, error)
	Password(question, def string) (string, error)
	Confirm(question string, def bool) (bool, error)
	Select(question string, options []string, def string) (string, error)
}

// Step is one idempotency-checked, optionally interactive unit of work.
//
// IsSkip must not mutate state and may be called any number of times.
// Run is called at most once per plan execution.
type Step interface {
	Name() string
	Description() string
	HasPrompts() bool
	Prompt(ctx context.Context, console Console) error
	IsSkip(ctx context.Context, status Status) Result
	Run(ctx context.Context, status Status) Result
}

// BaseStep provides the default parts of Step. Embed it and implement Run.
type BaseStep struct {
	name        string
	description string
}

func NewBaseStep(name, description string) BaseStep {
	return BaseStep{name: name, description: description}
}

func (b BaseStep) Name() string        { return b.name }
func (b BaseStep) Description() string { return b.description }
func (b BaseStep) HasPrompts() bool    { return false }

func (b BaseStep) Prompt(context.Context, Console) error { return nil }

func (b BaseStep) IsSkip(context.Context, Status) Result { return Completed("") }

type nopStatus struct{}

func (nopStatus) Update(string) {}
