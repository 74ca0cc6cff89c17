package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	calls []string
}

func (l *callLog) add(s string) { l.calls = append(l.calls, s) }

type fakeStep struct {
	BaseStep
	log     *callLog
	key     string
	prompts bool
	skip    Result
	run     Result
	prompt  error
}

func newFakeStep(log *callLog, name string) *fakeStep {
	return &fakeStep{
		BaseStep: NewBaseStep(name, "fake "+name),
		log:      log,
		key:      name,
		skip:     Completed(""),
		run:      Completed(""),
	}
}

func (s *fakeStep) Key() string      { return s.key }
func (s *fakeStep) HasPrompts() bool { return s.prompts }

func (s *fakeStep) Prompt(context.Context, Console) error {
	s.log.add(s.Name() + ".prompt")
	return s.prompt
}

func (s *fakeStep) IsSkip(context.Context, Status) Result {
	s.log.add(s.Name() + ".is_skip")
	return s.skip
}

func (s *fakeStep) Run(context.Context, Status) Result {
	s.log.add(s.Name() + ".run")
	return s.run
}

type alphaStep struct{ *fakeStep }
type betaStep struct{ *fakeStep }

func (alphaStep) Key() string { return "" }
func (betaStep) Key() string  { return "" }

type fakeConsole struct{}

func (fakeConsole) Ask(string, string) (string, error)              { return "", nil }
func (fakeConsole) Password(string, string) (string, error)         { return "", nil }
func (fakeConsole) Confirm(string, bool) (bool, error)              { return false, nil }
func (fakeConsole) Select(string, []string, string) (string, error) { return "", nil }

type recordingReporter struct {
	NopReporter
	events []string
}

func (r *recordingReporter) Pause()  { r.events = append(r.events, "pause") }
func (r *recordingReporter) Resume() { r.events = append(r.events, "resume") }
func (r *recordingReporter) StepFinished(step Step, res Result, _ time.Duration) {
	r.events = append(r.events, step.Name()+":"+res.Kind.String())
}

func TestRunEmptyPlan(t *testing.T) {
	results, err := Run(context.Background(), nil, nil, Options{})
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRunSkipShortCircuitsRun(t *testing.T) {
	log := &callLog{}
	a := newFakeStep(log, "a")
	a.skip = Skipped("already done")
	b := newFakeStep(log, "b")

	results, err := Run(context.Background(), nil, []Step{a, b}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.is_skip", "b.is_skip", "b.run"}, log.calls)
	assert.Equal(t, Skipped("already done"), results["a"])
	assert.Equal(t, Completed(""), results["b"])
}

func TestRunFailFastOnIsSkip(t *testing.T) {
	log := &callLog{}
	a := newFakeStep(log, "a")
	b := newFakeStep(log, "b")
	b.skip = Failedf("cannot reach clusterd")
	c := newFakeStep(log, "c")

	results, err := Run(context.Background(), nil, []Step{a, b, c}, Options{})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, "cannot reach clusterd", err.Error())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "b", stepErr.Step)
	assert.Equal(t, "is_skip", stepErr.Phase)
	assert.Equal(t, []string{"a.is_skip", "a.run", "b.is_skip"}, log.calls)
}

func TestRunFailFastOnRun(t *testing.T) {
	log := &callLog{}
	a := newFakeStep(log, "a")
	a.run = Failed(errors.New("bootstrap failed"))
	b := newFakeStep(log, "b")

	_, err := Run(context.Background(), nil, []Step{a, b}, Options{})
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "run", stepErr.Phase)
	assert.Equal(t, "bootstrap failed", stepErr.Result.Message)
	assert.Equal(t, []string{"a.is_skip", "a.run"}, log.calls)
}

func TestRunPreservesOrderAndPromptsBeforeIsSkip(t *testing.T) {
	log := &callLog{}
	steps := make([]Step, 0, 3)
	for _, name := range []string{"one", "two", "three"} {
		s := newFakeStep(log, name)
		s.prompts = name == "two"
		steps = append(steps, s)
	}
	reporter := &recordingReporter{}

	_, err := Run(context.Background(), nil, steps, Options{Console: fakeConsole{}, Reporter: reporter})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"one.is_skip", "one.run",
		"two.prompt", "two.is_skip", "two.run",
		"three.is_skip", "three.run",
	}, log.calls)
	assert.Equal(t, []string{
		"one:completed", "pause", "resume", "two:completed", "three:completed",
	}, reporter.events)
}

func TestRunPromptErrorAbortsPlan(t *testing.T) {
	log := &callLog{}
	a := newFakeStep(log, "a")
	a.prompts = true
	a.prompt = errors.New("interrupted")
	b := newFakeStep(log, "b")

	_, err := Run(context.Background(), nil, []Step{a, b}, Options{Console: fakeConsole{}})
	require.Error(t, err)
	assert.Equal(t, []string{"a.prompt"}, log.calls)
}

func TestRunPromptWithoutConsole(t *testing.T) {
	log := &callLog{}
	a := newFakeStep(log, "a")
	a.prompts = true

	_, err := Run(context.Background(), nil, []Step{a}, Options{})
	require.Error(t, err)
	assert.Empty(t, log.calls)
}

func TestRunKeysResultsByStepType(t *testing.T) {
	log := &callLog{}
	a := alphaStep{newFakeStep(log, "a")}
	a.run = Completed("token-123")
	b := betaStep{newFakeStep(log, "b")}
	b.run = Completed("").WithPayload([]string{"node-1"})

	results, err := Run(context.Background(), nil, []Step{a, b}, Options{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, a.run, results[KeyFor[alphaStep]()])
	assert.Equal(t, b.run, results[KeyFor[betaStep]()])
	assert.Equal(t, KeyOf(a), KeyFor[alphaStep]())

	msg, ok := StepMessage[alphaStep](results)
	require.True(t, ok)
	assert.Equal(t, "token-123", msg)

	nodes, ok := StepPayload[betaStep, []string](results)
	require.True(t, ok)
	assert.Equal(t, []string{"node-1"}, nodes)
}

func TestRunRejectsDuplicateKeys(t *testing.T) {
	log := &callLog{}
	a := alphaStep{newFakeStep(log, "a1")}
	b := alphaStep{newFakeStep(log, "a2")}

	_, err := Run(context.Background(), nil, []Step{a, b}, Options{})
	require.ErrorIs(t, err, ErrDuplicateStepKey)
	assert.Empty(t, log.calls)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	log := &callLog{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, nil, []Step{newFakeStep(log, "a")}, Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log.calls)
}

func TestResultHelpers(t *testing.T) {
	assert.Equal(t, "skipped", ResultSkipped.String())
	assert.True(t, Failed(errors.New("x")).IsFailed())
	assert.Equal(t, ResultFailed, Failed(nil).Kind)
	assert.True(t, Skipped("").IsSkipped())

	base := Completed("done")
	withPayload := base.WithPayload(42)
	assert.Nil(t, base.Payload)
	assert.Equal(t, 42, withPayload.Payload)
}

func TestStepErrorUnwrapsFailedCause(t *testing.T) {
	errBoom := errors.New("boom")
	log := &callLog{}
	a := newFakeStep(log, "a")
	a.run = Failed(errBoom)

	_, err := Run(context.Background(), nil, []Step{a}, Options{})
	require.ErrorIs(t, err, errBoom)

	b := newFakeStep(log, "b")
	b.run = Failedf("no cause")
	_, err = Run(context.Background(), nil, []Step{b}, Options{})
	require.Error(t, err)
	assert.Nil(t, errors.Unwrap(err))
}
