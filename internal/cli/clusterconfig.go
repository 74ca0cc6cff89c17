package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit configuration documents stored in the cluster",
	}
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigDeleteCmd())
	return cmd
}

func configNotFound(key string) error {
	return &userError{
		msg:  fmt.Sprintf("config item %s not found", key),
		hint: "Keys are case sensitive, e.g. ProxySettings",
	}
}

func newConfigGetCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get KEY [PATH]",
		Short: "Print a stored document, or the value at a gjson PATH inside it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatValue, formatJSON); err != nil {
				return err
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			key := args[0]
			raw, err := s.client.Cluster.GetConfig(ctx, key)
			if errors.Is(err, clusterd.ErrConfigItemNotFound) {
				return configNotFound(key)
			}
			if err != nil {
				return s.explain(err)
			}

			value := gjson.Parse(raw)
			if len(args) == 2 {
				if !gjson.Valid(raw) {
					return fmt.Errorf("config item %s is not a JSON document", key)
				}
				value = gjson.Get(raw, args[1])
				if !value.Exists() {
					return &userError{msg: fmt.Sprintf("%s has no value at %s", key, args[1])}
				}
			}

			w := cmd.OutOrStdout()
			switch {
			case format == formatJSON && gjson.Valid(value.Raw):
				return printJSON(w, json.RawMessage(value.Raw))
			case format == formatJSON:
				return printJSON(w, raw)
			case len(args) == 2:
				fmt.Fprintln(w, value.String())
			default:
				fmt.Fprintln(w, raw)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatValue, "Output format: value|json")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	var rawJSON bool

	cmd := &cobra.Command{
		Use:   "set KEY PATH VALUE",
		Short: "Set the value at an sjson PATH of a stored document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, path, value := args[0], args[1], args[2]
			if rawJSON && !gjson.Valid(value) {
				return &userError{msg: fmt.Sprintf("value %q is not valid JSON", value), hint: "Drop --json to store it as a string"}
			}
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			doc, err := s.client.Cluster.GetConfig(ctx, key)
			switch {
			case errors.Is(err, clusterd.ErrConfigItemNotFound):
				doc = "{}"
			case err != nil:
				return s.explain(err)
			case !gjson.Valid(doc):
				return fmt.Errorf("config item %s is not a JSON document", key)
			}

			if rawJSON {
				doc, err = sjson.SetRaw(doc, path, value)
			} else {
				doc, err = sjson.Set(doc, path, value)
			}
			if err != nil {
				return fmt.Errorf("set %s in %s: %w", path, key, err)
			}
			if err := s.client.Cluster.UpdateConfig(ctx, key, doc); err != nil {
				return s.explain(err)
			}
			s.logger.Debug("config updated", "key", key, "path", path)
			if s.human {
				printSuccess(cmd.OutOrStdout(), "%s updated", key)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rawJSON, "json", false, "Parse VALUE as JSON instead of storing a string")
	return cmd
}

func newConfigDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(true)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			err = s.client.Cluster.DeleteConfig(ctx, args[0])
			if errors.Is(err, clusterd.ErrConfigItemNotFound) {
				return configNotFound(args[0])
			}
			if err != nil {
				return s.explain(err)
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "%s deleted", args[0])
			}
			return nil
		},
	}
	return cmd
}
