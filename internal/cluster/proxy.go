package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/questions"
)

// ProxyConfigKey is the clusterd config key holding the proxy answers.
const ProxyConfigKey = "ProxySettings"

// EnvironmentFile is where host-wide proxy variables are read from.
const EnvironmentFile = "/etc/environment"

var proxyVariables = []string{"http_proxy", "https_proxy", "no_proxy"}

var defaultNoProxy = []string{
	"127.0.0.1",
	"localhost",
	"10.152.183.0/24",
	"10.1.0.0/16",
	".svc",
	".svc.cluster.local",
}

func proxyQuestions() map[string]*questions.Question {
	return map[string]*questions.Question{
		"proxy_required": questions.Confirm(
			"Configure proxy for access to external network resources?",
			questions.WithDefault(false),
		),
		"http_proxy":  questions.Prompt("Enter value for http_proxy:"),
		"https_proxy": questions.Prompt("Enter value for https_proxy:"),
		"no_proxy":    questions.Prompt("Enter value for no_proxy:"),
	}
}

// EnvironmentProxySettings reads HTTP_PROXY, HTTPS_PROXY and NO_PROXY
// (either case) from an environment file. A missing file yields no
// settings.
func EnvironmentProxySettings(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	section := cfg.Section("")
	out := map[string]string{}
	for _, name := range proxyVariables {
		upper := strings.ToUpper(name)
		for _, key := range []string{upper, name} {
			if v := strings.TrimSpace(section.Key(key).String()); v != "" {
				out[upper] = v
				break
			}
		}
	}
	return out, nil
}

// PromptForProxyStep collects proxy settings and stores them in clusterd.
// The result payload is the answers document.
type PromptForProxyStep struct {
	plan.BaseStep
	store          questions.ConfigStore
	preseed        map[string]any
	acceptDefaults bool
	defaults       func() map[string]string
	logger         *slog.Logger

	variables map[string]any
}

// NewPromptForProxyStep builds the step. store may be nil when no cluster
// exists yet; answers are then neither loaded nor saved. defaults supplies
// the upper-case proxy variables used when no complete answer is stored.
func NewPromptForProxyStep(store questions.ConfigStore, preseed map[string]any, acceptDefaults bool, defaults func() map[string]string, logger *slog.Logger) *PromptForProxyStep {
	if defaults == nil {
		defaults = func() map[string]string { return nil }
	}
	return &PromptForProxyStep{
		BaseStep:       plan.NewBaseStep("Proxy Settings", "Query user for proxy settings"),
		store:          store,
		preseed:        preseed,
		acceptDefaults: acceptDefaults,
		defaults:       defaults,
		logger:         orDefault(logger),
		variables:      map[string]any{},
	}
}

func (s *PromptForProxyStep) HasPrompts() bool { return true }

func (s *PromptForProxyStep) Prompt(ctx context.Context, console plan.Console) error {
	s.variables = map[string]any{}
	if s.store != nil {
		loaded, err := questions.LoadAnswers(ctx, s.store, ProxyConfigKey)
		if err != nil {
			return err
		}
		s.variables = loaded
	}
	previous := questions.Section(s.variables, "proxy")
	if previous == nil {
		previous = map[string]any{}
	}
	s.logger.Debug("previous proxy answers", "answers", previous)

	if !hasAll(previous, proxyVariables...) {
		fromDefaults := map[string]any{}
		for k, v := range s.defaults() {
			if v != "" {
				fromDefaults[strings.ToLower(k)] = v
			}
		}
		if len(fromDefaults) > 0 {
			previous["proxy_required"] = true
		}
		for k, v := range fromDefaults {
			previous[k] = v
		}
	}

	bank := questions.NewBank(proxyQuestions(), questions.BankOptions{
		Console:        console,
		Logger:         s.logger,
		Preseed:        questions.Section(s.preseed, "proxy"),
		Previous:       previous,
		AcceptDefaults: s.acceptDefaults,
	})

	answers := map[string]any{}
	required, err := bank.Question("proxy_required").AskBool(false)
	if err != nil {
		return err
	}
	answers["proxy_required"] = required
	if required {
		for _, name := range proxyVariables {
			v, err := bank.Question(name).AskString("")
			if err != nil {
				return err
			}
			answers[name] = v
		}
	}
	s.variables["proxy"] = answers

	if s.store != nil {
		return questions.WriteAnswers(ctx, s.store, ProxyConfigKey, s.variables)
	}
	return nil
}

func (s *PromptForProxyStep) Run(context.Context, plan.Status) plan.Result {
	return plan.Completed("").WithPayload(s.variables)
}

// ProxySettings returns the effective upper-case proxy variables: the
// stored answers when a proxy is required, otherwise defaults when nothing
// could be read. NO_PROXY always includes the cluster-internal ranges.
func ProxySettings(ctx context.Context, store questions.ConfigStore, defaults func() map[string]string) map[string]string {
	proxy := map[string]string{}
	answers, err := readProxyAnswers(ctx, store)
	switch {
	case err != nil:
		slog.Debug("using default proxy settings", "reason", err)
		if defaults != nil {
			for k, v := range defaults() {
				proxy[k] = v
			}
		}
	case answers["proxy_required"] == true:
		for _, name := range proxyVariables {
			if v, _ := answers[name].(string); v != "" {
				proxy[strings.ToUpper(name)] = v
			}
		}
	}

	if noProxy, ok := proxy["NO_PROXY"]; ok {
		proxy["NO_PROXY"] = mergeNoProxy(noProxy)
	}
	return proxy
}

func readProxyAnswers(ctx context.Context, store questions.ConfigStore) (map[string]any, error) {
	if store == nil {
		return nil, errors.New("no cluster configured")
	}
	raw, err := store.GetConfig(ctx, ProxyConfigKey)
	if err != nil {
		return nil, err
	}
	var answers map[string]any
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ProxyConfigKey, err)
	}
	proxy := questions.Section(answers, "proxy")
	if proxy == nil {
		return map[string]any{}, nil
	}
	return proxy, nil
}

func mergeNoProxy(value string) string {
	set := map[string]struct{}{}
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	for _, v := range defaultNoProxy {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func hasAll(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, _ := m[k].(string); v == "" {
			return false
		}
	}
	return true
}
