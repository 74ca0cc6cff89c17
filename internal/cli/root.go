package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/config"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/deployments"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

var (
	configPath     string
	logFormat      string
	logLevel       string
	deploymentName string
	reportFile     string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sunbeam",
		Short:         "Deploy and manage a Sunbeam OpenStack cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			_, err := newLogger(logFormat, logLevel, loggerOptions{})
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text|json")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&deploymentName, "deployment", "", "Deployment to act on (default: the active one)")
	cmd.PersistentFlags().StringVar(&reportFile, "report", "", "Write a JSON report of the plan steps to this file")

	cmd.AddCommand(newPreflightCmd())
	cmd.AddCommand(newClusterCmd())
	cmd.AddCommand(newProxyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newManifestCmd())
	cmd.AddCommand(newDeploymentCmd())
	cmd.AddCommand(newPlansCmd())
	cmd.AddCommand(newTerraformCmd())
	cmd.AddCommand(newOpenStackCmd())

	return cmd
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	if ctx.Err() != nil {
		restoreTTY()
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errPromptInterrupted) {
			err = &userError{msg: "interrupted"}
		}
	}
	if err != nil {
		printError(os.Stderr, err)
		return err
	}
	return nil
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	var ue *userError
	if errors.As(err, &ue) {
		fmt.Fprintf(w, "%s %s\n", red("Error:"), ue.Error())
		if hint := ue.Hint(); hint != "" {
			fmt.Fprintf(w, "%s %s\n", yellow("Hint:"), cyan(hint))
		}
		return
	}
	fmt.Fprintf(w, "%s %v\n", red("Error:"), err)
}

// userError is an error with a suggested next action.
type userError struct {
	msg  string
	hint string
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Hint() string  { return e.hint }

// explainError turns clusterd and plan failures into userErrors where a
// useful next action exists. Other errors pass through unchanged.
func explainError(err error, d deployments.Deployment) error {
	if err == nil {
		return nil
	}
	var ue *userError
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &userError{
			msg:  "operation timed out",
			hint: "Increase timeouts.total_minutes in the config file",
		}
	}
	if errors.Is(err, clusterd.ErrNotInitialized) {
		return &userError{
			msg:  fmt.Sprintf("cluster of deployment %s is not bootstrapped", d.Name),
			hint: "Run: sunbeam cluster bootstrap",
		}
	}
	if clusterd.KindOf(err) == clusterd.KindTransportUnavailable {
		hint := "Check the clusterd service: snap services openstack.clusterd"
		if d.Type == deployments.TypeRemote {
			hint = fmt.Sprintf("Verify %s is reachable, or switch deployment: sunbeam deployment switch <name>", d.URL)
		}
		return &userError{msg: err.Error(), hint: hint}
	}
	if errors.Is(err, clusterd.ErrTokenAlreadyGenerated) {
		return &userError{
			msg:  err.Error(),
			hint: "Remove the pending token first: sunbeam cluster remove --name <node>",
		}
	}
	if errors.Is(err, clusterd.ErrNodeJoin) {
		return &userError{
			msg:  err.Error(),
			hint: "Generate a new token on a cluster member: sunbeam cluster add --name <fqdn>",
		}
	}
	var ce *plan.CheckError
	if errors.As(err, &ce) {
		return &userError{msg: ce.Error(), hint: "Fix the failed check, then rerun the command"}
	}
	return err
}

type loggerOptions struct {
	File config.LoggingConfig
	// Quiet raises the console level to warn while progress output owns
	// the terminal. Debug stays debug.
	Quiet bool
}

func newLogger(format, level string, opts loggerOptions) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid --log-level %q (expected: debug|info|warn|error)", level)
	}
	if opts.Quiet && lvl == slog.LevelInfo {
		lvl = slog.LevelWarn
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, hopts)
	case "json":
		h = slog.NewJSONHandler(os.Stdout, hopts)
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected: text|json)", format)
	}

	if opts.File.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File.File,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
		}
		h = slog.NewMultiHandler(h, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func humanOutput() bool {
	return strings.EqualFold(logFormat, "text")
}
