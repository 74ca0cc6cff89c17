package cli

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
)

// staleLockAge is how old a lock must be before it is released without
// confirmation.
const staleLockAge = time.Hour

var nowFn = time.Now

func newPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect Terraform plans stored in the cluster",
	}
	cmd.AddCommand(newPlansListCmd())
	cmd.AddCommand(newPlansUnlockCmd())
	return cmd
}

func newPlansListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List Terraform plans and their lock status",
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

			plans, err := s.client.Cluster.ListTerraformPlans(ctx)
			if err != nil {
				return s.explain(err)
			}
			locks, err := s.client.Cluster.ListTerraformLocks(ctx)
			if err != nil {
				return s.explain(err)
			}
			slices.Sort(plans)

			states := make(map[string]string, len(plans))
			for _, p := range plans {
				states[p] = "unlocked"
				if slices.Contains(locks, p) {
					states[p] = "locked"
				}
			}
			if ok, err := printStructured(cmd.OutOrStdout(), format, states); ok {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Plan", "Locked")
			for _, p := range plans {
				table.Append([]string{p, mark(states[p] == "locked")})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table|yaml|json")
	return cmd
}

func newPlansUnlockCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock PLAN",
		Short: "Release the state lock of a Terraform plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			notFound := &userError{msg: fmt.Sprintf("lock for %q not found", name), hint: "List plans: sunbeam plans list"}
			lock, err := s.client.Cluster.GetTerraformLock(ctx, name)
			if errors.Is(err, clusterd.ErrConfigItemNotFound) {
				return notFound
			}
			if err != nil {
				return s.explain(err)
			}

			if !force && !lock.Created.IsZero() && nowFn().Sub(lock.Created) < staleLockAge {
				ok, err := newTerminalConsole().Confirm(
					fmt.Sprintf("Plan %q was locked less than an hour ago, are you sure you want to unlock it?", name), false)
				if err != nil {
					return err
				}
				if !ok {
					return &userError{msg: "unlock aborted", hint: "Wait for the running operation, or pass --force"}
				}
			}

			err = s.client.Cluster.UnlockTerraformPlan(ctx, name, lock)
			if errors.Is(err, clusterd.ErrConfigItemNotFound) {
				return notFound
			}
			if err != nil {
				return s.explain(err)
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "unlocked plan %q", name)
			} else {
				s.logger.Info("plan unlocked", "plan", name, "lock_id", lock.ID, "who", lock.Who)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Unlock without confirmation even if the lock is recent")
	return cmd
}
