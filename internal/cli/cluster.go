package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/cluster"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/manifest"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/questions"
)

var knownRoles = []string{"control", "compute", "storage"}

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Manage the nodes of the Sunbeam cluster",
	}
	cmd.AddCommand(newClusterBootstrapCmd())
	cmd.AddCommand(newClusterAddCmd())
	cmd.AddCommand(newClusterJoinCmd())
	cmd.AddCommand(newClusterListCmd())
	cmd.AddCommand(newClusterRemoveCmd())
	cmd.AddCommand(newClusterUpdateCmd())
	return cmd
}

func validateRoles(roles []string) ([]string, error) {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if !slices.Contains(knownRoles, r) {
			return nil, &userError{
				msg:  fmt.Sprintf("unknown role %q", r),
				hint: "Use one or more of: " + strings.Join(knownRoles, ", "),
			}
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func environmentProxyDefaults() map[string]string {
	settings, err := cluster.EnvironmentProxySettings(cluster.EnvironmentFile)
	if err != nil {
		slog.Debug("no proxy defaults", "file", cluster.EnvironmentFile, "error", err)
		return nil
	}
	return settings
}

func newClusterBootstrapCmd() *cobra.Command {
	var (
		roles          []string
		manifestPath   string
		preseedPath    string
		acceptDefaults bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap the cluster with this host as its first node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles, err := validateRoles(roles)
			if err != nil {
				return err
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			if err := s.requireLocal("cluster bootstrap"); err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			if err := s.preflight(ctx, cmd, s.hostChecks(fqdnFn())); err != nil {
				return err
			}
			preseed := map[string]any{}
			if preseedPath != "" {
				if preseed, err = questions.ReadPreseed(preseedPath); err != nil {
					return err
				}
			}

			initStep, err := cluster.NewInitStep(s.client.Cluster, roles, s.logger)
			if err != nil {
				return err
			}
			// A fresh node has no cluster to load previous answers from; they
			// are stored once the plan has bootstrapped it.
			store := s.storedAnswersFor(ctx, fqdnFn())
			steps := []plan.Step{
				cluster.NewPromptForProxyStep(store, preseed, acceptDefaults, environmentProxyDefaults, s.logger),
				initStep,
				manifest.NewAddManifestStep(s.client.Cluster, manifestPath, s.logger),
			}
			results, err := s.runPlan(ctx, cmd, steps)
			if err != nil {
				return err
			}
			if answers, ok := plan.StepPayload[*cluster.PromptForProxyStep, map[string]any](results); ok && store == nil {
				if err := questions.WriteAnswers(ctx, s.client.Cluster, cluster.ProxyConfigKey, answers); err != nil {
					return s.explain(err)
				}
			}

			if s.human {
				printSuccess(cmd.OutOrStdout(), "node bootstrapped with roles: %s", strings.Join(roles, ", "))
			} else {
				s.logger.Info("cluster bootstrapped", "roles", roles)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&roles, "role", []string{"control"}, "Roles of this node: control|compute|storage (repeatable)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest file to store with the deployment")
	cmd.Flags().StringVar(&preseedPath, "preseed", "", "YAML file with answers to the bootstrap questions")
	cmd.Flags().BoolVar(&acceptDefaults, "accept-defaults", false, "Answer every question with its default")
	return cmd
}

type nodeToken struct {
	Name  string `json:"name" yaml:"name"`
	Token string `json:"token" yaml:"token"`
}

func newClusterAddCmd() *cobra.Command {
	var (
		name      string
		jujuToken string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Generate a token for a new node to join the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatValue, formatJSON, formatYAML); err != nil {
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
			steps := []plan.Step{cluster.NewAddNodeStep(s.client.Cluster, name, s.logger)}
			if jujuToken != "" {
				steps = append(steps, cluster.NewAddJujuUserStep(s.client.Cluster, name, jujuToken))
			}
			results, err := s.runPlan(ctx, cmd, steps)
			if err != nil {
				return err
			}
			res, _ := results.Get(plan.KeyFor[*cluster.AddNodeStep]())
			if res.Message == "" {
				return &userError{
					msg:  fmt.Sprintf("node %s is already a cluster member", name),
					hint: "List members: sunbeam cluster list",
				}
			}

			out := nodeToken{Name: name, Token: res.Message}
			if ok, err := printStructured(cmd.OutOrStdout(), format, out); ok {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Fully qualified name of the new node")
	cmd.Flags().StringVar(&jujuToken, "juju-token", "", "Juju registration token to record for the node")
	cmd.Flags().StringVarP(&format, "format", "f", formatValue, "Output format: value|json|yaml")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newClusterJoinCmd() *cobra.Command {
	var (
		token string
		roles []string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join this host to the cluster with a token from `cluster add`",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles, err := validateRoles(roles)
			if err != nil {
				return err
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			if err := s.requireLocal("cluster join"); err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			if err := s.preflight(ctx, cmd, s.hostChecks(fqdnFn())); err != nil {
				return err
			}
			join, err := cluster.NewJoinNodeStep(s.client.Cluster, token, roles, s.logger)
			if err != nil {
				return err
			}
			if _, err := s.runPlan(ctx, cmd, []plan.Step{join}); err != nil {
				return err
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "node joined cluster with roles: %s", strings.Join(roles, ", "))
			} else {
				s.logger.Info("node joined cluster", "roles", roles)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Join token generated on a cluster member")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"control"}, "Roles of this node: control|compute|storage (repeatable)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newClusterListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the nodes of the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTable, formatYAML, formatJSON); err != nil {
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
			results, err := plan.Run(ctx, s.logger, []plan.Step{cluster.NewListNodesStep(s.client.Cluster)}, plan.Options{})
			if err != nil {
				return s.explain(err)
			}
			nodes, _ := plan.StepPayload[*cluster.ListNodesStep, []cluster.NodeStatus](results)

			if ok, err := printStructured(cmd.OutOrStdout(), format, nodes); ok {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Node", "Status", "Control", "Compute", "Storage")
			for _, n := range nodes {
				status := "down"
				if n.Status == "ONLINE" {
					status = "up"
				}
				table.Append([]string{
					n.Name,
					status,
					mark(slices.Contains(n.Roles, "control")),
					mark(slices.Contains(n.Roles, "compute")),
					mark(slices.Contains(n.Roles, "storage")),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table|yaml|json")
	return cmd
}

func newClusterRemoveCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a node from the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			if err := s.preflight(ctx, cmd, s.clusterChecks()); err != nil {
				return err
			}
			if _, err := s.runPlan(ctx, cmd, []plan.Step{cluster.NewRemoveNodeStep(s.client.Cluster, name, s.logger)}); err != nil {
				return err
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "node %s removed", name)
			} else {
				s.logger.Info("node removed", "node", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Fully qualified name of the node")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newClusterUpdateCmd() *cobra.Command {
	var (
		name      string
		roles     []string
		machineID int
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the roles or machine id recorded for a node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cmd.Flags().Changed("role") {
				if roles, err = validateRoles(roles); err != nil {
					return err
				}
			} else {
				roles = nil
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
			step := cluster.NewUpdateNodeStep(s.client.Cluster, name, roles, machineID)
			if _, err := s.runPlan(ctx, cmd, []plan.Step{step}); err != nil {
				return err
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "node %s updated", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Fully qualified name of the node")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "New roles of the node (repeatable)")
	cmd.Flags().IntVar(&machineID, "machine-id", -1, "Machine id of the node")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
