package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// BankOptions configures how every question in a bank is answered.
type BankOptions struct {
	Console        plan.Console
	Logger         *slog.Logger
	Preseed        map[string]any
	Previous       map[string]any
	AcceptDefaults bool
}

// Bank is a named set of questions sharing a console, preseed and previous
// answers.
type Bank struct {
	questions map[string]*Question
}

func NewBank(questions map[string]*Question, opts BankOptions) *Bank {
	for _, q := range questions {
		q.console = opts.Console
		q.logger = opts.Logger
		q.acceptDefaults = opts.AcceptDefaults
	}
	for key, v := range opts.Preseed {
		if v == nil {
			continue
		}
		if q, ok := questions[key]; ok {
			q.SetPreseed(v)
		}
	}
	for key, v := range opts.Previous {
		if v == nil {
			continue
		}
		if q, ok := questions[key]; ok {
			q.SetPrevious(v)
		}
	}
	return &Bank{questions: questions}
}

// Question returns the question registered under key. Unknown keys are a
// programming error.
func (b *Bank) Question(key string) *Question {
	q, ok := b.questions[key]
	if !ok {
		panic(fmt.Sprintf("questions: no question %q in bank", key))
	}
	return q
}

// ReadPreseed loads a YAML preseed file.
func ReadPreseed(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preseed %s: %w", path, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse preseed %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Section returns m[key] when it is a nested mapping, or nil.
func Section(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return nil
}

// ConfigStore is the clusterd key/value store answers are kept in.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	UpdateConfig(ctx context.Context, key, value string) error
}

// LoadAnswers reads the answers stored under key. A missing key yields an
// empty map.
func LoadAnswers(ctx context.Context, store ConfigStore, key string) (map[string]any, error) {
	raw, err := store.GetConfig(ctx, key)
	if err != nil {
		if errors.Is(err, clusterd.ErrConfigItemNotFound) {
			slog.Debug("no stored answers", "key", key)
			return map[string]any{}, nil
		}
		return nil, err
	}
	answers := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("decode answers %s: %w", key, err)
	}
	return answers, nil
}

func WriteAnswers(ctx context.Context, store ConfigStore, key string, answers map[string]any) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers %s: %w", key, err)
	}
	return store.UpdateConfig(ctx, key, string(data))
}
