package openstack

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/endpoints"
	"github.com/gophercloud/gophercloud/openstack/identity/v3/services"
)

var ErrMissingCredentials = errors.New("missing OpenStack credentials")

// Credentials are the OS_* settings of an admin openrc.
type Credentials struct {
	AuthURL           string
	Username          string
	Password          string
	ProjectName       string
	UserDomainName    string
	ProjectDomainName string
	CACert            string
	Insecure          bool
}

// CredentialsFromEnv reads credentials the way openrc files export them.
func CredentialsFromEnv(getenv func(string) string) (Credentials, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c := Credentials{
		AuthURL:           getenv("OS_AUTH_URL"),
		Username:          getenv("OS_USERNAME"),
		Password:          getenv("OS_PASSWORD"),
		ProjectName:       getenv("OS_PROJECT_NAME"),
		UserDomainName:    getenv("OS_USER_DOMAIN_NAME"),
		ProjectDomainName: getenv("OS_PROJECT_DOMAIN_NAME"),
		CACert:            getenv("OS_CACERT"),
		Insecure:          strings.EqualFold(getenv("OS_INSECURE"), "true"),
	}
	var missing []string
	for name, v := range map[string]string{"OS_AUTH_URL": c.AuthURL, "OS_USERNAME": c.Username, "OS_PASSWORD": c.Password} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Credentials{}, fmt.Errorf("%w: %s not set, source the admin openrc first", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	if c.UserDomainName == "" {
		c.UserDomainName = "Default"
	}
	if c.ProjectDomainName == "" {
		c.ProjectDomainName = c.UserDomainName
	}
	return c, nil
}

func (c Credentials) authOptions() gophercloud.AuthOptions {
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: c.AuthURL,
		Username:         c.Username,
		Password:         c.Password,
		DomainName:       c.UserDomainName,
	}
	if c.ProjectName != "" {
		opts.Scope = &gophercloud.AuthScope{ProjectName: c.ProjectName, DomainName: c.ProjectDomainName}
	}
	return opts
}

func (c Credentials) httpClient() (http.Client, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.Insecure} //nolint:gosec
	if c.CACert != "" {
		pem, err := os.ReadFile(c.CACert)
		if err != nil {
			return http.Client{}, fmt.Errorf("read OS_CACERT %s: %w", c.CACert, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return http.Client{}, fmt.Errorf("OS_CACERT %s holds no certificates", c.CACert)
		}
		tlsCfg.RootCAs = pool
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return http.Client{Transport: transport}, nil
}

// Endpoint is one catalog entry joined with its service.
type Endpoint struct {
	Service   string `json:"service" yaml:"service"`
	Type      string `json:"type" yaml:"type"`
	Interface string `json:"interface" yaml:"interface"`
	Region    string `json:"region" yaml:"region"`
	URL       string `json:"url" yaml:"url"`
}

// ListEndpoints authenticates and returns the identity catalog endpoints,
// ordered by service then interface.
func ListEndpoints(c Credentials) ([]Endpoint, error) {
	provider, err := openstack.NewClient(c.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("openstack client: %w", err)
	}
	provider.HTTPClient, err = c.httpClient()
	if err != nil {
		return nil, err
	}
	if err := openstack.Authenticate(provider, c.authOptions()); err != nil {
		return nil, fmt.Errorf("authenticate to %s: %w", c.AuthURL, err)
	}
	identity, err := openstack.NewIdentityV3(provider, gophercloud.EndpointOpts{})
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}

	svcPages, err := services.List(identity, services.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	svcs, err := services.ExtractServices(svcPages)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	byID := make(map[string]services.Service, len(svcs))
	for _, s := range svcs {
		byID[s.ID] = s
	}

	epPages, err := endpoints.List(identity, endpoints.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	eps, err := endpoints.ExtractEndpoints(epPages)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}

	out := make([]Endpoint, 0, len(eps))
	for _, ep := range eps {
		svc := byID[ep.ServiceID]
		name, _ := svc.Extra["name"].(string)
		if name == "" {
			name = ep.ServiceID
		}
		out = append(out, Endpoint{
			Service:   name,
			Type:      svc.Type,
			Interface: string(ep.Availability),
			Region:    ep.Region,
			URL:       ep.URL,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Interface < out[j].Interface
	})
	return out, nil
}
