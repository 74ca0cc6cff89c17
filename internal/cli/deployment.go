package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/deployments"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

func newDeploymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Manage the deployments this host can act on",
	}
	cmd.AddCommand(newDeploymentListCmd())
	cmd.AddCommand(newDeploymentAddCmd())
	cmd.AddCommand(newDeploymentSwitchCmd())
	cmd.AddCommand(newDeploymentRemoveCmd())
	return cmd
}

type deploymentRow struct {
	deployments.Deployment `yaml:",inline"`
	Active                 bool `json:"active" yaml:"active"`
}

func newDeploymentListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known deployments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTable, formatYAML, formatJSON); err != nil {
				return err
			}
			s, err := openSession(false)
			if err != nil {
				return err
			}
			rows := make([]deploymentRow, 0, len(s.registry.Deployments))
			for _, d := range s.registry.Deployments {
				rows = append(rows, deploymentRow{Deployment: d, Active: d.Name == s.registry.Active})
			}
			if ok, err := printStructured(cmd.OutOrStdout(), format, rows); ok {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Deployment", "Endpoint", "Type", "Active")
			for _, r := range rows {
				table.Append([]string{r.Name, r.URL, r.Type, mark(r.Active)})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table|yaml|json")
	return cmd
}

func newDeploymentAddCmd() *cobra.Command {
	var (
		caFile     string
		insecure   bool
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME [URL]",
		Short: "Register a deployment and make it active",
		Long: "Register a deployment and make it active. Without URL the deployment is\n" +
			"this host's own cluster, reached through the clusterd socket.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := deployments.Deployment{Name: args[0], URL: deployments.Local().URL, Type: deployments.TypeLocal}
			if len(args) == 2 {
				d = deployments.Deployment{Name: args[0], URL: args[1], Type: deployments.TypeRemote, CAFile: caFile, InsecureSkipVerify: insecure}
			}
			if err := d.Validate(); err != nil {
				return &userError{msg: err.Error(), hint: "Remote deployments need an https://<host>:7000 URL"}
			}
			s, err := openSession(false)
			if err != nil {
				return err
			}
			if d.Type == deployments.TypeRemote && !skipVerify {
				ctx, cancel := s.context(cmd)
				defer cancel()
				s.deployment = d
				check, err := s.reachabilityCheck()
				if err != nil {
					return err
				}
				if err := s.preflight(ctx, cmd, []plan.Check{check}); err != nil {
					return err
				}
			}
			if err := s.registry.Add(d); err != nil {
				return &userError{msg: err.Error(), hint: "Remove it first: sunbeam deployment remove " + d.Name}
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "deployment %s added and active", d.Name)
			} else {
				s.logger.Info("deployment added", "name", d.Name, "url", d.URL, "file", s.registry.Path())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caFile, "ca-file", "", "PEM file with the CA of a remote clusterd")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-verify", false, "Do not verify the TLS certificate of a remote clusterd")
	cmd.Flags().BoolVar(&skipVerify, "no-check", false, "Do not check the remote clusterd is reachable")
	return cmd
}

func newDeploymentSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch NAME",
		Short: "Make a deployment the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(false)
			if err != nil {
				return err
			}
			if err := s.registry.Switch(args[0]); err != nil {
				return &userError{msg: err.Error(), hint: "List known deployments: sunbeam deployment list"}
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "deployment %s is active", args[0])
			}
			return nil
		},
	}
	return cmd
}

func newDeploymentRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Forget a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(false)
			if err != nil {
				return err
			}
			if err := s.registry.Remove(args[0]); err != nil {
				return &userError{msg: err.Error(), hint: "List known deployments: sunbeam deployment list"}
			}
			if s.human {
				msg := fmt.Sprintf("deployment %s removed", args[0])
				if s.registry.Active != "" {
					msg += ", active is " + s.registry.Active
				}
				printSuccess(cmd.OutOrStdout(), "%s", msg)
			}
			return nil
		},
	}
	return cmd
}
