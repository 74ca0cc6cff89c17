package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

type TCPCheckStats struct {
	Attempts int
	Elapsed  time.Duration
}

// WaitForTCPPort dials host:port until it answers or attempts run out.
func WaitForTCPPort(ctx context.Context, host string, port int, attempts int, connectTimeout time.Duration, retryDelay time.Duration) (TCPCheckStats, error) {
	started := time.Now()
	stats := TCPCheckStats{}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	var lastErr error
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		stats.Attempts = i + 1
		d := net.Dialer{Timeout: connectTimeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			stats.Elapsed = time.Since(started)
			return stats, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			stats.Elapsed = time.Since(started)
			return stats, fmt.Errorf("connecting to %s canceled after %d attempts in %s: %w", address, stats.Attempts, stats.Elapsed.Truncate(time.Millisecond), ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	stats.Elapsed = time.Since(started)
	return stats, fmt.Errorf("connecting to %s failed after %d attempts in %s: %w", address, stats.Attempts, stats.Elapsed.Truncate(time.Millisecond), lastErr)
}

// TCPReachableCheck fails when a remote clusterd endpoint does not accept
// connections.
type TCPReachableCheck struct {
	plan.BaseCheck
	host           string
	port           int
	attempts       int
	connectTimeout time.Duration
	retryDelay     time.Duration
	Stats          TCPCheckStats
}

func NewTCPReachableCheck(host string, port, attempts int, connectTimeout, retryDelay time.Duration) *TCPReachableCheck {
	return &TCPReachableCheck{
		BaseCheck:      plan.NewBaseCheck("Check clusterd reachable", fmt.Sprintf("Checking %s is reachable", net.JoinHostPort(host, strconv.Itoa(port)))),
		host:           host,
		port:           port,
		attempts:       attempts,
		connectTimeout: connectTimeout,
		retryDelay:     retryDelay,
	}
}

func (c *TCPReachableCheck) Run(ctx context.Context) bool {
	stats, err := WaitForTCPPort(ctx, c.host, c.port, c.attempts, c.connectTimeout, c.retryDelay)
	c.Stats = stats
	if err != nil {
		return c.Fail(err.Error())
	}
	return true
}

// MemberLister is the clusterd call ClusterdMemberCheck needs.
type MemberLister interface {
	Members(ctx context.Context) ([]clusterd.Member, error)
}

// ClusterdMemberCheck fails unless the deployment has been bootstrapped.
// When node is set the node must also be one of the members.
type ClusterdMemberCheck struct {
	plan.BaseCheck
	svc  MemberLister
	node string
}

func NewClusterdMemberCheck(svc MemberLister, node string) *ClusterdMemberCheck {
	return &ClusterdMemberCheck{
		BaseCheck: plan.NewBaseCheck("Check bootstrapped", "Checking the deployment has been bootstrapped"),
		svc:       svc,
		node:      node,
	}
}

func (c *ClusterdMemberCheck) Run(ctx context.Context) bool {
	members, err := c.svc.Members(ctx)
	if errors.Is(err, clusterd.ErrNotInitialized) || (err == nil && len(members) == 0) {
		return c.Fail("Deployment not bootstrapped or bootstrap process has not completed successfully. Please run `sunbeam cluster bootstrap`")
	}
	if err != nil {
		return c.Fail(err.Error())
	}
	if c.node == "" {
		return true
	}
	for _, m := range members {
		if m.Name == c.node {
			return true
		}
	}
	return c.Fail(fmt.Sprintf("Node %s is not a member of the cluster. Please run `sunbeam cluster join`", c.node))
}
