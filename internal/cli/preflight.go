package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/checks"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/cluster"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/deployments"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

var fqdnFn = cluster.FQDN

func newPreflightCmd() *cobra.Command {
	var hypervisorHostname string

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check this host or the selected deployment is ready",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(false)
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()

			var list []plan.Check
			if s.deployment.Type == deployments.TypeRemote {
				c, err := s.reachabilityCheck()
				if err != nil {
					return err
				}
				list = append(list, c)
			} else {
				fqdn := fqdnFn()
				list = s.hostChecks(fqdn)
				if hypervisorHostname != "" {
					list = append(list, checks.NewVerifyHypervisorHostnameCheck(fqdn, hypervisorHostname))
				}
			}

			if err := s.preflight(ctx, cmd, list); err != nil {
				return err
			}
			if s.human {
				printSuccess(cmd.OutOrStdout(), "preflight checks passed for deployment %s", s.deployment.Name)
			} else {
				s.logger.Info("preflight checks passed", "deployment", s.deployment.Name, "checks", len(list))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hypervisorHostname, "hypervisor-hostname", "", "Hostname the hypervisor reports, compared with this host's FQDN")
	return cmd
}

// hostChecks are the checks a node must pass before it bootstraps or joins.
func (s *session) hostChecks(fqdn string) []plan.Check {
	p := s.cfg.Preflight
	list := []plan.Check{
		checks.NewDaemonGroupCheck(s.cfg.Clusterd.Socket, s.cfg.Clusterd.Group),
		checks.NewLocalShareCheck(),
		checks.NewVerifyFQDNCheck(fqdn),
		checks.NewSystemRequirementsCheck(p.MinCores, p.MinMemoryGB),
		checks.NewOSReleaseCheck(p.SupportedOS),
	}
	if len(p.SSHKeys) > 0 {
		list = append(list, checks.NewSSHKeysCheck(p.SSHKeys...))
	}
	return list
}

// clusterChecks are the checks for commands that need a bootstrapped
// deployment.
func (s *session) clusterChecks() []plan.Check {
	var list []plan.Check
	if s.deployment.Type == deployments.TypeLocal {
		list = append(list, checks.NewDaemonGroupCheck(s.cfg.Clusterd.Socket, s.cfg.Clusterd.Group))
	}
	return append(list, checks.NewClusterdMemberCheck(s.client.Cluster, ""))
}

func (s *session) reachabilityCheck() (*checks.TCPReachableCheck, error) {
	host, port, err := endpointHostPort(s.deployment.URL)
	if err != nil {
		return nil, err
	}
	t := s.cfg.Timeouts
	return checks.NewTCPReachableCheck(host, port, t.TCPRetries, t.TCPConnectDuration(), t.TCPRetryDelayDuration()), nil
}

// endpointHostPort splits a clusterd URL. The clusterd port is assumed when
// the URL has none.
func endpointHostPort(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("parse deployment url %q: %w", raw, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("deployment url %q has no host", raw)
	}
	if u.Port() == "" {
		return host, clusterd.DefaultPort, nil
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, fmt.Errorf("deployment url %q: invalid port: %w", raw, err)
	}
	return host, port, nil
}
