package cluster

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
)

var (
	hostnameFn   = os.Hostname
	lookupAddrFn = net.LookupAddr
	localIPFn    = LocalIP
)

// LocalIP returns the address of the interface holding the default route.
// No packet is sent; the UDP dial only selects a source address.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "", fmt.Errorf("find default route address: %w", err)
	}
	defer func() { _ = conn.Close() }()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "", fmt.Errorf("find default route address: unexpected local address %v", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// FQDN returns the host's fully qualified name. A short hostname is
// resolved through the default route address; if that fails the short
// name is returned.
func FQDN() string {
	host, err := hostnameFn()
	if err != nil {
		return "localhost"
	}
	if strings.Contains(host, ".") {
		return host
	}
	ip, err := localIPFn()
	if err != nil {
		return host
	}
	names, err := lookupAddrFn(ip)
	if err != nil || len(names) == 0 {
		return host
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" || name == "localhost" {
		return host
	}
	return name
}

// ClusterAddress is the clusterd address advertised for ip.
func ClusterAddress(ip string) string {
	return net.JoinHostPort(ip, strconv.Itoa(clusterd.DefaultPort))
}
