package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/config"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/deployments"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// session is the state shared by commands that talk to a deployment.
type session struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *deployments.Registry
	deployment deployments.Deployment
	client     *clusterd.Client
	human      bool
}

// openSession loads the config, sets up logging and selects the deployment.
// The clusterd client is built only when withClient is set.
func openSession(withClient bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	human := humanOutput()
	logger, err := newLogger(logFormat, logLevel, loggerOptions{File: cfg.Logging, Quiet: human})
	if err != nil {
		return nil, err
	}
	registry, err := deployments.Load(cfg.Deployments.File)
	if err != nil {
		return nil, err
	}
	d, err := selectDeployment(registry, deploymentName)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, registry: registry, deployment: d, human: human}
	if !withClient {
		return s, nil
	}

	if d.Type == deployments.TypeRemote {
		if d.CAFile == "" {
			d.CAFile = cfg.Clusterd.CAFile
		}
		d.InsecureSkipVerify = d.InsecureSkipVerify || cfg.Clusterd.InsecureSkipVerify
	}
	s.client, err = deployments.Client(d, deployments.ClientOptions{
		SocketPath: cfg.Clusterd.Socket,
		Timeout:    cfg.Clusterd.RequestTimeout(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("deployment selected", "name", d.Name, "type", d.Type, "endpoint", s.client.Endpoint())
	return s, nil
}

// selectDeployment picks the named deployment, else the active one, else
// this host's local cluster.
func selectDeployment(r *deployments.Registry, name string) (deployments.Deployment, error) {
	if name != "" {
		if name == deployments.Local().Name {
			if d, err := r.Get(name); err == nil {
				return d, nil
			}
			return deployments.Local(), nil
		}
		d, err := r.Get(name)
		if err != nil {
			return deployments.Deployment{}, &userError{
				msg:  err.Error(),
				hint: "List known deployments: sunbeam deployment list",
			}
		}
		return d, nil
	}
	d, err := r.Current()
	if errors.Is(err, deployments.ErrNoActive) {
		return deployments.Local(), nil
	}
	return d, err
}

func (s *session) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), s.cfg.Timeouts.TotalDuration())
}

func (s *session) reporter(cmd *cobra.Command) plan.Reporter {
	if s.human {
		return newHumanReporter(cmd.ErrOrStderr())
	}
	return logReporter{logger: s.logger}
}

// runPlan runs steps with the session console and progress output.
func (s *session) runPlan(ctx context.Context, cmd *cobra.Command, steps []plan.Step) (plan.Results, error) {
	reporter := s.reporter(cmd)
	var rec *recordingReporter
	if reportFile != "" {
		rec = newRecordingReporter(reporter, cmd.CommandPath(), s.deployment.Name)
		reporter = rec
	}
	results, err := plan.Run(ctx, s.logger, steps, plan.Options{
		Console:  newTerminalConsole(),
		Reporter: reporter,
	})
	if rec != nil {
		if werr := rec.write(reportFile, err); werr != nil {
			s.logger.Warn("plan report not written", "path", reportFile, "error", werr)
		}
	}
	if err != nil {
		return nil, s.explain(err)
	}
	return results, nil
}

// preflight runs checks, reporting each one in human mode.
func (s *session) preflight(ctx context.Context, cmd *cobra.Command, checks []plan.Check) error {
	var status plan.Status = logReporter{logger: s.logger}
	if s.human {
		status = newCheckPrinter(cmd.ErrOrStderr())
	}
	if err := plan.RunPreflightChecks(ctx, s.logger, checks, status); err != nil {
		return s.explain(err)
	}
	if s.human {
		printWarnings(cmd.ErrOrStderr(), checks)
	}
	return nil
}

func (s *session) explain(err error) error {
	return explainError(err, s.deployment)
}

func (s *session) requireLocal(action string) error {
	if s.deployment.Type == deployments.TypeLocal {
		return nil
	}
	return &userError{
		msg:  fmt.Sprintf("%s runs on a cluster node, deployment %s is remote", action, s.deployment.Name),
		hint: "Switch to the local deployment: sunbeam deployment switch local",
	}
}
