package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/openstack"
)

var (
	credentialsFn   = openstack.CredentialsFromEnv
	listEndpointsFn = openstack.ListEndpoints
)

func newOpenStackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openstack",
		Short: "Query the deployed OpenStack cloud",
	}
	cmd.AddCommand(newOpenStackEndpointsCmd())
	return cmd
}

func newOpenStackEndpointsCmd() *cobra.Command {
	var (
		format string
		iface  string
	)

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List the service endpoints of the identity catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTable, formatYAML, formatJSON); err != nil {
				return err
			}
			creds, err := credentialsFn(nil)
			if errors.Is(err, openstack.ErrMissingCredentials) {
				return &userError{msg: err.Error(), hint: "Source the admin openrc of the cloud, then rerun the command"}
			}
			if err != nil {
				return err
			}
			eps, err := listEndpointsFn(creds)
			if err != nil {
				return err
			}
			if iface != "" {
				filtered := eps[:0]
				for _, ep := range eps {
					if ep.Interface == iface {
						filtered = append(filtered, ep)
					}
				}
				eps = filtered
			}

			if ok, err := printStructured(cmd.OutOrStdout(), format, eps); ok {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Service", "Type", "Interface", "Region", "URL")
			for _, ep := range eps {
				table.Append([]string{ep.Service, ep.Type, ep.Interface, ep.Region, ep.URL})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table|yaml|json")
	cmd.Flags().StringVar(&iface, "interface", "", "Only show endpoints of this interface: public|internal|admin")
	return cmd
}
