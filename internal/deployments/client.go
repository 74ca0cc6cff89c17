package deployments

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
)

// ClientOptions carries the host-level clusterd settings shared by every
// deployment.
type ClientOptions struct {
	SocketPath string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client builds the clusterd client for d: the control socket for a local
// deployment, HTTPS for a remote one.
func Client(d Deployment, opts ClientOptions) (*clusterd.Client, error) {
	var copts []clusterd.Option
	if opts.Timeout > 0 {
		copts = append(copts, clusterd.WithTimeout(opts.Timeout))
	}
	if opts.Logger != nil {
		copts = append(copts, clusterd.WithLogger(opts.Logger))
	}

	switch d.Type {
	case TypeLocal:
		if opts.SocketPath == "" {
			return nil, fmt.Errorf("deployment %s: clusterd socket path not configured", d.Name)
		}
		return clusterd.FromSocket(opts.SocketPath, copts...)
	case TypeRemote:
		if d.CAFile != "" {
			copts = append(copts, clusterd.WithCAFile(d.CAFile))
		}
		if d.InsecureSkipVerify {
			copts = append(copts, clusterd.WithInsecureSkipVerify())
		}
		return clusterd.FromHTTP(d.URL, copts...)
	default:
		return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidEntry, d.Name, d.Type)
	}
}
