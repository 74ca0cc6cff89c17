package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/cluster"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/deployments"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/manifest"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/terraform"
)

func newTerraformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terraform",
		Short: "Run a Terraform plan against the cluster state backend",
	}
	cmd.AddCommand(newTerraformInitCmd())
	cmd.AddCommand(newTerraformApplyCmd())
	cmd.AddCommand(newTerraformDestroyCmd())
	cmd.AddCommand(newTerraformOutputCmd())
	return cmd
}

// tfvarsConfigKey is the config item holding the variables last applied
// for plan, e.g. TerraformVarsOpenstackPlan.
func tfvarsConfigKey(planName string) string {
	var b strings.Builder
	b.WriteString("TerraformVars")
	for _, part := range strings.Split(planName, "-") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func planArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if !slices.Contains(manifest.PlanNames(), args[0]) {
		return &userError{
			msg:  fmt.Sprintf("unknown terraform plan %q", args[0]),
			hint: "Known plans: " + strings.Join(manifest.PlanNames(), ", "),
		}
	}
	return nil
}

// terraformPlan prepares the working directory of planName and returns a
// helper for it along with the effective manifest.
func (s *session) terraformPlan(ctx context.Context, planName string) (*terraform.Helper, manifest.Manifest, error) {
	tf := s.cfg.Terraform
	m, err := manifest.FromClusterd(ctx, s.client.Cluster, manifest.Defaults(tf.SnapDir))
	if err != nil {
		return nil, manifest.Manifest{}, s.explain(err)
	}
	src, err := m.PlanSource(planName)
	if err != nil {
		return nil, manifest.Manifest{}, err
	}

	h := &terraform.Helper{
		Binary:      tf.Binary,
		Path:        filepath.Join(tf.PlansDir, manifest.PlanDirs[planName]),
		Plan:        planName,
		Parallelism: tf.Parallelism,
		Backend:     terraform.BackendHTTP,
		Env:         cluster.ProxySettings(ctx, s.client.Cluster, environmentProxyDefaults),
		Logger:      s.logger,
	}
	if s.deployment.Type == deployments.TypeRemote {
		h.BackendAddress = s.deployment.URL
	}
	if mirror := tf.ProviderMirror(); mirror != "" {
		if _, err := os.Stat(mirror); err == nil {
			h.ProviderMirror = mirror
		} else {
			s.logger.Debug("provider mirror not available", "path", mirror, "error", err)
		}
	}

	if err := os.MkdirAll(h.Path, 0o755); err != nil {
		return nil, manifest.Manifest{}, fmt.Errorf("create plan dir: %w", err)
	}
	if tf.MinVersion != "" {
		v, err := h.VersionCheck(ctx, tf.MinVersion)
		if err != nil {
			return nil, manifest.Manifest{}, &userError{
				msg:  err.Error(),
				hint: "Install a supported terraform or set terraform.binary in the config file",
			}
		}
		s.logger.Debug("terraform version", "version", v.String())
	}
	if err := h.Prepare(src); err != nil {
		return nil, manifest.Manifest{}, err
	}
	return h, m, nil
}

func parseVars(pairs []string) (map[string]any, error) {
	out := map[string]any{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, &userError{msg: fmt.Sprintf("invalid --var %q", p), hint: "Use --var name=value"}
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func newTerraformInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init PLAN",
		Short: "Copy a plan into the plans directory and initialize it",
		Args:  planArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			h, _, err := s.terraformPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := s.runPlan(ctx, cmd, []plan.Step{terraform.NewInitStep(h)}); err != nil {
				return err
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "plan %s initialized in %s", h.Plan, h.Path)
			}
			return nil
		},
	}
	return cmd
}

func newTerraformApplyCmd() *cobra.Command {
	var (
		vars        []string
		refreshOnly bool
	)

	cmd := &cobra.Command{
		Use:   "apply PLAN",
		Short: "Apply a plan with the manifest and stored variables",
		Args:  planArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			if err := s.preflight(ctx, cmd, s.clusterChecks()); err != nil {
				return err
			}
			h, m, err := s.terraformPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if refreshOnly {
				if _, err := s.runPlan(ctx, cmd, []plan.Step{terraform.NewInitStep(h)}); err != nil {
					return err
				}
				if err := h.Sync(ctx); err != nil {
					return s.explain(err)
				}
			} else {
				steps := []plan.Step{
					terraform.NewInitStep(h),
					terraform.NewApplyStep(h, s.client.Cluster, tfvarsConfigKey(h.Plan), m, overrides),
				}
				if _, err := s.runPlan(ctx, cmd, steps); err != nil {
					return err
				}
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "plan %s applied", h.Plan)
			} else {
				s.logger.Info("plan applied", "plan", h.Plan, "refresh_only", refreshOnly)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "Override a variable: name=value (repeatable)")
	cmd.Flags().BoolVar(&refreshOnly, "refresh-only", false, "Only refresh the state from the running resources")
	return cmd
}

func newTerraformDestroyCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy PLAN",
		Short: "Destroy everything a plan created",
		Args:  planArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			if !yes {
				ok, err := newTerminalConsole().Confirm(fmt.Sprintf("Destroy all resources of plan %s?", args[0]), false)
				if err != nil {
					return err
				}
				if !ok {
					return &userError{msg: "destroy aborted"}
				}
			}
			h, _, err := s.terraformPlan(ctx, args[0])
			if err != nil {
				return err
			}
			steps := []plan.Step{terraform.NewInitStep(h), terraform.NewDestroyStep(h)}
			if _, err := s.runPlan(ctx, cmd, steps); err != nil {
				return err
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "plan %s destroyed", h.Plan)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newTerraformOutputCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "output PLAN",
		Short: "Print the outputs of an applied plan",
		Args:  planArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatYAML, formatJSON); err != nil {
				return err
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			h, _, err := s.terraformPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := plan.Run(ctx, s.logger, []plan.Step{terraform.NewInitStep(h)}, plan.Options{}); err != nil {
				return s.explain(err)
			}
			out, err := h.Output(ctx)
			if err != nil {
				return s.explain(err)
			}
			_, err = printStructured(cmd.OutOrStdout(), format, out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatYAML, "Output format: yaml|json")
	return cmd
}
