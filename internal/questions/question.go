package questions

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// ErrNoConsole is returned when a question must be asked interactively but
// no console was attached.
var ErrNoConsole = errors.New("question needs an answer but no console is attached")

type kind int

const (
	kindPrompt kind = iota
	kindPassword
	kindConfirm
)

// Question is a single value to resolve, either from a preseed, from the
// user, or from its defaults.
type Question struct {
	Text        string
	Default     any
	DefaultFunc func() any
	Choices     []string
	// Validate rejects an answer. Interactive answers are asked again,
	// preseeded ones fail.
	Validate func(answer any) error

	kind           kind
	console        plan.Console
	logger         *slog.Logger
	preseed        any
	hasPreseed     bool
	previous       any
	acceptDefaults bool
}

type Option func(*Question)

func WithDefault(v any) Option {
	return func(q *Question) { q.Default = v }
}

func WithDefaultFunc(fn func() any) Option {
	return func(q *Question) { q.DefaultFunc = fn }
}

func WithChoices(choices ...string) Option {
	return func(q *Question) { q.Choices = choices }
}

func WithValidation(fn func(any) error) Option {
	return func(q *Question) { q.Validate = fn }
}

func newQuestion(k kind, text string, opts []Option) *Question {
	q := &Question{Text: text, kind: k}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Prompt asks for a free-form (or choice) string answer.
func Prompt(text string, opts ...Option) *Question {
	return newQuestion(kindPrompt, text, opts)
}

// Password asks for a string answer without echoing it.
func Password(text string, opts ...Option) *Question {
	return newQuestion(kindPassword, text, opts)
}

// Confirm asks a yes/no question.
func Confirm(text string, opts ...Option) *Question {
	return newQuestion(kindConfirm, text, opts)
}

// SetPreseed fixes the answer; the user is never asked.
func (q *Question) SetPreseed(v any) {
	q.preseed = v
	q.hasPreseed = true
}

func (q *Question) SetPrevious(v any) { q.previous = v }

// CalculateDefault picks the default shown to the user: the previous
// answer, then newDefault, then DefaultFunc, then Default. Empty values
// fall through to the next source.
func (q *Question) CalculateDefault(newDefault any) any {
	switch {
	case isSet(q.previous):
		return q.previous
	case isSet(newDefault):
		return newDefault
	case q.DefaultFunc != nil:
		v := q.DefaultFunc()
		if q.kind != kindPassword {
			q.log().Debug("value from default function", "question", q.Text, "value", v)
		}
		return v
	case isSet(q.Default):
		return q.Default
	}
	return nil
}

// Ask resolves the question. newDefault overrides the configured defaults
// but not a previous answer.
func (q *Question) Ask(newDefault any) (any, error) {
	for {
		answer, err := q.resolve(newDefault)
		if err != nil {
			return nil, err
		}
		if q.Validate == nil {
			return answer, nil
		}
		verr := q.Validate(answer)
		if verr == nil {
			return answer, nil
		}
		if q.hasPreseed {
			q.log().Error("invalid preseed value", "question", q.Text, "error", verr)
			return nil, fmt.Errorf("invalid value for %q: %w", q.Text, verr)
		}
		if q.acceptDefaults || q.console == nil {
			return nil, fmt.Errorf("invalid value for %q: %w", q.Text, verr)
		}
		q.log().Warn("invalid answer", "question", q.Text, "error", verr)
	}
}

// AskString resolves the question as a string.
func (q *Question) AskString(newDefault string) (string, error) {
	v, err := q.Ask(newDefault)
	if err != nil {
		return "", err
	}
	return asString(v), nil
}

// AskBool resolves the question as a boolean.
func (q *Question) AskBool(newDefault bool) (bool, error) {
	v, err := q.Ask(newDefault)
	if err != nil {
		return false, err
	}
	return asBool(v)
}

func (q *Question) resolve(newDefault any) (any, error) {
	if q.hasPreseed {
		return q.preseed, nil
	}
	def := q.CalculateDefault(newDefault)
	if q.acceptDefaults {
		return def, nil
	}
	if q.console == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConsole, q.Text)
	}

	switch q.kind {
	case kindConfirm:
		b, err := asBool(def)
		if err != nil {
			b = false
		}
		return q.console.Confirm(q.Text, b)
	case kindPassword:
		return q.console.Password(q.Text, asString(def))
	default:
		if len(q.Choices) > 0 {
			return q.console.Select(q.Text, q.Choices, asString(def))
		}
		return q.console.Ask(q.Text, asString(def))
	}
}

func (q *Question) log() *slog.Logger {
	if q.logger != nil {
		return q.logger
	}
	return slog.Default()
}

func isSet(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprint(v)
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("not a yes/no answer: %q", t)
		}
		return b, nil
	}
	return false, fmt.Errorf("not a yes/no answer: %v", v)
}
