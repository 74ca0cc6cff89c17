package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/manifest"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

func newManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Manage deployment manifests",
	}
	cmd.AddCommand(newManifestListCmd())
	cmd.AddCommand(newManifestShowCmd())
	cmd.AddCommand(newManifestAddCmd())
	return cmd
}

type manifestEntry struct {
	ID          string `json:"manifestid" yaml:"manifestid"`
	AppliedDate string `json:"applieddate" yaml:"applieddate"`
}

func newManifestListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored manifests",
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

			stored, err := s.client.Cluster.ListManifests(ctx)
			if err != nil {
				return s.explain(err)
			}
			entries := make([]manifestEntry, 0, len(stored))
			for _, m := range stored {
				entries = append(entries, manifestEntry{ID: m.ManifestID, AppliedDate: m.AppliedDate})
			}
			if ok, err := printStructured(cmd.OutOrStdout(), format, entries); ok {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "ID", "Applied Date")
			for _, e := range entries {
				table.Append([]string{e.ID, e.AppliedDate})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table|yaml|json")
	return cmd
}

func newManifestShowCmd() *cobra.Command {
	var merged bool

	cmd := &cobra.Command{
		Use:   "show [ID]",
		Short: "Print a stored manifest (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := manifest.Latest
			if len(args) == 1 {
				id = args[0]
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			if merged {
				if id != manifest.Latest {
					return &userError{msg: "--merged only applies to the latest manifest"}
				}
				m, err := manifest.FromClusterd(ctx, s.client.Cluster, manifest.Defaults(s.cfg.Terraform.SnapDir))
				if err != nil {
					return s.explain(err)
				}
				data, err := m.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			m, err := s.client.Cluster.GetManifest(ctx, id)
			if errors.Is(err, clusterd.ErrManifestNotFound) {
				return &userError{
					msg:  fmt.Sprintf("no manifest exists with id %s", id),
					hint: "List stored manifests: sunbeam manifest list",
				}
			}
			if err != nil {
				return s.explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(m.Data, "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&merged, "merged", false, "Print the latest manifest merged over the built-in defaults")
	return cmd
}

func newManifestAddCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a manifest file as the latest manifest",
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
			results, err := s.runPlan(ctx, cmd, []plan.Step{manifest.NewAddManifestStep(s.client.Cluster, path, s.logger)})
			if err != nil {
				return err
			}
			res, _ := results.Get(plan.KeyFor[*manifest.AddManifestStep]())
			switch {
			case res.IsSkipped() && s.human:
				printSuccess(cmd.OutOrStdout(), "manifest unchanged, latest is %s", res.Message)
			case s.human:
				printSuccess(cmd.OutOrStdout(), "manifest stored as %s", res.Message)
			default:
				s.logger.Info("manifest stored", "id", res.Message, "unchanged", res.IsSkipped())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "Manifest file (default: an empty manifest)")
	return cmd
}
