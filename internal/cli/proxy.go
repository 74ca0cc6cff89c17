package cli

import (
	"context"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/cluster"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/questions"
)

func newProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage the proxy settings of the deployment",
	}
	cmd.AddCommand(newProxyShowCmd())
	cmd.AddCommand(newProxySetCmd())
	cmd.AddCommand(newProxyClearCmd())
	return cmd
}

func newProxyShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective proxy variables",
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
			settings := cluster.ProxySettings(ctx, s.client.Cluster, environmentProxyDefaults)
			if ok, err := printStructured(cmd.OutOrStdout(), format, settings); ok {
				return err
			}
			names := make([]string, 0, len(settings))
			for k := range settings {
				names = append(names, k)
			}
			slices.Sort(names)
			table := newTable(cmd.OutOrStdout(), "Proxy Variable", "Value")
			for _, k := range names {
				table.Append([]string{k, settings[k]})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table|yaml|json")
	return cmd
}

func newProxySetCmd() *cobra.Command {
	var httpProxy, httpsProxy, noProxy string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store proxy variables and mark the proxy as required",
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed := map[string]string{}
			for flag, value := range map[string]string{
				"http-proxy":  httpProxy,
				"https-proxy": httpsProxy,
				"no-proxy":    noProxy,
			} {
				if cmd.Flags().Changed(flag) {
					changed[flagVariable(flag)] = value
				}
			}
			if len(changed) == 0 {
				return &userError{
					msg:  "expected at least one of --http-proxy, --https-proxy, --no-proxy",
					hint: "To remove the proxy, run: sunbeam proxy clear",
				}
			}

			return updateProxy(cmd, func(proxy map[string]any) {
				proxy["proxy_required"] = true
				for k, v := range changed {
					proxy[k] = v
				}
			})
		},
	}

	cmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP_PROXY value")
	cmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS_PROXY value")
	cmd.Flags().StringVar(&noProxy, "no-proxy", "", "NO_PROXY value")
	return cmd
}

func newProxyClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored proxy variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return updateProxy(cmd, func(proxy map[string]any) {
				proxy["proxy_required"] = false
				for _, k := range []string{"http_proxy", "https_proxy", "no_proxy"} {
					proxy[k] = ""
				}
			})
		},
	}
}

// flagVariable maps a --x-proxy flag to its answer key.
func flagVariable(flag string) string {
	switch flag {
	case "http-proxy":
		return "http_proxy"
	case "https-proxy":
		return "https_proxy"
	}
	return "no_proxy"
}

// updateProxy applies edit to the stored proxy answers and writes them back.
// Answers outside the proxy section are kept.
func updateProxy(cmd *cobra.Command, edit func(proxy map[string]any)) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	ctx, cancel := s.context(cmd)
	defer cancel()

	if err := s.preflight(ctx, cmd, s.clusterChecks()); err != nil {
		return err
	}
	answers, err := questions.LoadAnswers(ctx, s.client.Cluster, cluster.ProxyConfigKey)
	if err != nil {
		return s.explain(err)
	}
	proxy := questions.Section(answers, "proxy")
	if proxy == nil {
		proxy = map[string]any{}
	}
	edit(proxy)
	answers["proxy"] = proxy
	if err := questions.WriteAnswers(ctx, s.client.Cluster, cluster.ProxyConfigKey, answers); err != nil {
		return s.explain(err)
	}

	s.logger.Debug("proxy settings updated", "proxy_required", proxy["proxy_required"])
	if s.human {
		printSuccess(cmd.OutOrStdout(), "proxy settings updated")
	}
	return nil
}

// storedAnswersFor returns the clusterd store when name is already a
// member, so a repeated bootstrap starts from the stored answers.
func (s *session) storedAnswersFor(ctx context.Context, name string) questions.ConfigStore {
	members, err := s.client.Cluster.Members(ctx)
	if err != nil {
		s.logger.Debug("no stored answers", "reason", err)
		return nil
	}
	for _, m := range members {
		if m.Name == name {
			return s.client.Cluster
		}
	}
	return nil
}
