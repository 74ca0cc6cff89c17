package plan

import (
	"context"
	"log/slog"
)

// Check is a read-only environment precondition.
type Check interface {
	Name() string
	Description() string
	Run(ctx context.Context) bool
	Message() string
}

// Warner is implemented by checks that can pass with a warning.
type Warner interface {
	Warning() string
}

// BaseCheck carries the identity and failure message of a check.
type BaseCheck struct {
	name        string
	description string
	message     string
	warning     string
}

func NewBaseCheck(name, description string) BaseCheck {
	return BaseCheck{name: name, description: description}
}

func (c *BaseCheck) Name() string        { return c.name }
func (c *BaseCheck) Description() string { return c.description }
func (c *BaseCheck) Message() string     { return c.message }
func (c *BaseCheck) Warning() string     { return c.warning }

// Fail records msg and returns false so checks can `return c.Fail(...)`.
func (c *BaseCheck) Fail(msg string) bool {
	c.message = msg
	return false
}

func (c *BaseCheck) Warn(msg string) {
	c.warning = msg
}

// RunPreflightChecks runs checks in order and stops at the first failure.
func RunPreflightChecks(ctx context.Context, logger *slog.Logger, checks []Check, status Status) error {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = nopStatus{}
	}
	for _, check := range checks {
		status.Update("Checking: " + check.Description())
		logger.Debug("preflight check", "check", check.Name())
		if !check.Run(ctx) {
			logger.Debug("preflight check failed", "check", check.Name(), "message", check.Message())
			return &CheckError{Check: check.Name(), Message: check.Message()}
		}
		if w, ok := check.(Warner); ok {
			if msg := w.Warning(); msg != "" {
				logger.Warn("preflight warning", "check", check.Name(), "message", msg)
			}
		}
	}
	return nil
}
