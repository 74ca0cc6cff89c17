package terraform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Error is a failed terraform invocation.
type Error struct {
	Op     string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return formatRunError("terraform "+e.Op+" failed", e.Err, e.Stderr).Error()
}

func (e *Error) Unwrap() error { return e.Err }

var nowFn = time.Now

// run executes the terraform binary in h.Path. op names the log file
// terraform writes through TF_LOG_PATH.
func (h *Helper) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, h.binary(), args...)
	cmd.Dir = h.Path
	cmd.Env = h.environ(op)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := h.log()
	logger.Debug("running terraform", "plan", h.Plan, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout.String(), ctxErr
		}
		logger.Warn("terraform failed", "plan", h.Plan, "op", op, "stderr", summarizeStderr(stderr.String()))
		return stdout.String(), &Error{Op: op, Stderr: stderr.String(), Err: err}
	}
	logger.Debug("terraform finished", "plan", h.Plan, "op", op, "stdout_bytes", stdout.Len())
	return stdout.String(), nil
}

func (h *Helper) environ(op string) []string {
	env := map[string]string{}
	order := []string{}
	set := func(k, v string) {
		if _, ok := env[k]; !ok {
			order = append(order, k)
		}
		env[k] = v
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		set(k, v)
	}
	set("TF_LOG_PATH", filepath.Join(h.Path, fmt.Sprintf("terraform-%s-%s.log", op, nowFn().Format("20060102150405"))))
	if _, ok := env["TF_LOG"]; !ok {
		set("TF_LOG", "INFO")
	}
	if h.ProviderMirror != "" {
		set("TF_CLI_CONFIG_FILE", h.rcPath())
	}
	for k, v := range h.Env {
		set(k, v)
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+env[k])
	}
	return out
}

func formatRunError(prefix string, runErr error, stderr string) error {
	errText := summarizeStderr(stderr)
	if errText == "" {
		return fmt.Errorf("%s: %w", prefix, runErr)
	}
	return fmt.Errorf("%s: %w (%s)", prefix, runErr, truncate(errText, 360))
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// summarizeStderr keeps the lines of terraform's error output that say what
// went wrong, dropping the box drawing of its diagnostics.
func summarizeStderr(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	filtered := make([]string, 0, len(lines))
	for _, l := range lines {
		t := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "│╷╵"))
		if t == "" {
			continue
		}
		filtered = append(filtered, t)
	}
	if len(filtered) == 0 {
		return strings.TrimSpace(stderr)
	}
	for i, l := range filtered {
		if strings.HasPrefix(l, "Error:") {
			end := i + 2
			if end > len(filtered) {
				end = len(filtered)
			}
			return strings.Join(filtered[i:end], " | ")
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	// Keep the last 2 lines; they usually contain the actionable error.
	return strings.Join(filtered[len(filtered)-2:], " | ")
}
