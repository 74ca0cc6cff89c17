package clusterd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultPort is the clusterd HTTPS port on every node.
	DefaultPort = 7000

	socketScheme          = "http+unix://"
	socketNotFoundMessage = "Sunbeam Cluster socket not found, is clusterd running ? Check with 'snap services openstack.clusterd'"
	defaultTimeout        = 30 * time.Second
)

// Client talks to clusterd over its local control socket or over HTTPS.
// It holds no state besides the transport and is safe to share.
type Client struct {
	endpoint   string
	base       *url.URL
	socketPath string
	http       *http.Client
	logger     *slog.Logger

	Cluster *ClusterService
}

type options struct {
	insecure   bool
	rootCAs    *x509.CertPool
	caFile     string
	timeout    time.Duration
	logger     *slog.Logger
	httpClient *http.Client
}

type Option func(*options)

// WithInsecureSkipVerify disables TLS certificate verification for HTTPS
// endpoints. Verification is on unless this option is given.
func WithInsecureSkipVerify() Option {
	return func(o *options) { o.insecure = true }
}

func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) { o.rootCAs = pool }
}

// WithCAFile trusts the PEM certificates in path in addition to the system pool.
func WithCAFile(path string) Option {
	return func(o *options) { o.caFile = path }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the transport entirely. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// SocketPath returns the clusterd control socket below the snap common dir.
func SocketPath(snapCommon string) string {
	return filepath.Join(snapCommon, "state", "control.socket")
}

// FromSocket connects to the local clusterd control socket.
func FromSocket(socketPath string, opts ...Option) (*Client, error) {
	return New(socketScheme+url.PathEscape(socketPath), opts...)
}

// FromHTTP connects to a remote clusterd, e.g. https://10.0.0.10:7000.
func FromHTTP(endpoint string, opts ...Option) (*Client, error) {
	if strings.HasPrefix(endpoint, socketScheme) {
		return nil, fmt.Errorf("clusterd endpoint %q is a socket address", endpoint)
	}
	return New(endpoint, opts...)
}

// New builds a client for endpoint. An http+unix:// endpoint carries the
// url-escaped socket path as its host part.
func New(endpoint string, opts ...Option) (*Client, error) {
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{endpoint: endpoint, logger: logger}

	if strings.HasPrefix(endpoint, socketScheme) {
		socketPath, err := url.PathUnescape(strings.TrimPrefix(endpoint, socketScheme))
		if err != nil {
			return nil, fmt.Errorf("parse clusterd socket endpoint %q: %w", endpoint, err)
		}
		if socketPath == "" {
			return nil, fmt.Errorf("clusterd socket endpoint %q has no path", endpoint)
		}
		c.socketPath = socketPath
		c.base = &url.URL{Scheme: "http", Host: "clusterd", Path: "/"}
		c.http = o.httpClient
		if c.http == nil {
			c.http = &http.Client{Timeout: o.timeout, Transport: unixTransport(socketPath)}
		}
	} else {
		base, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse clusterd endpoint %q: %w", endpoint, err)
		}
		if base.Scheme != "https" && base.Scheme != "http" {
			return nil, fmt.Errorf("clusterd endpoint %q must use https", endpoint)
		}
		if base.Host == "" {
			return nil, fmt.Errorf("clusterd endpoint %q has no host", endpoint)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		c.base = base
		c.http = o.httpClient
		if c.http == nil {
			tlsCfg, err := tlsConfig(o)
			if err != nil {
				return nil, err
			}
			if o.insecure {
				logger.Warn("clusterd TLS verification disabled", "endpoint", endpoint)
			}
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = tlsCfg
			c.http = &http.Client{Timeout: o.timeout, Transport: transport}
		}
	}

	c.Cluster = newClusterService(c)
	return c, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func unixTransport(socketPath string) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
}

func tlsConfig(o options) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if o.insecure {
		cfg.InsecureSkipVerify = true //nolint:gosec
		return cfg, nil
	}
	pool := o.rootCAs
	if o.caFile != "" {
		pem, err := os.ReadFile(o.caFile)
		if err != nil {
			return nil, fmt.Errorf("read clusterd CA file %s: %w", o.caFile, err)
		}
		if pool == nil {
			pool, err = x509.SystemCertPool()
			if err != nil || pool == nil {
				pool = x509.NewCertPool()
			}
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("clusterd CA file %s has no PEM certificates", o.caFile)
		}
	}
	cfg.RootCAs = pool
	return cfg, nil
}
