package checks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// Seams for tests.
var (
	accessFn    = func(path string) error { return unix.Access(path, unix.W_OK) }
	homeDirFn   = os.UserHomeDir
	numCPUFn    = runtime.NumCPU
	memInfoPath = "/proc/meminfo"
)

// DaemonGroupCheck fails when the current user cannot write to the clusterd
// control socket.
type DaemonGroupCheck struct {
	plan.BaseCheck
	socket string
	user   string
	group  string
}

func NewDaemonGroupCheck(socket, group string) *DaemonGroupCheck {
	user := os.Getenv("USER")
	return &DaemonGroupCheck{
		BaseCheck: plan.NewBaseCheck("Check for snap_daemon group membership",
			fmt.Sprintf("Checking if user %s is member of group %s", user, group)),
		socket: socket,
		user:   user,
		group:  group,
	}
}

func (c *DaemonGroupCheck) Run(context.Context) bool {
	if err := accessFn(c.socket); err != nil {
		return c.Fail(fmt.Sprintf("Insufficient permissions to run sunbeam commands\n"+
			"Add the user %q to the %q group:\n\n    sudo usermod -a -G %s %s\n\n"+
			"After this, reload the user groups either via a reboot or by running 'newgrp %s'.",
			c.user, c.group, c.group, c.user, c.group))
	}
	return true
}

// LocalShareCheck fails when ~/.local/share is missing.
type LocalShareCheck struct {
	plan.BaseCheck
}

func NewLocalShareCheck() *LocalShareCheck {
	return &LocalShareCheck{BaseCheck: plan.NewBaseCheck("Check for .local/share directory",
		"Checking for ~/.local/share directory for Juju")}
}

func (c *LocalShareCheck) Run(context.Context) bool {
	home, err := homeDirFn()
	if err != nil {
		return c.Fail(fmt.Sprintf("cannot determine home directory: %v", err))
	}
	dir := filepath.Join(home, ".local", "share")
	if _, err := os.Stat(dir); err != nil {
		return c.Fail(fmt.Sprintf("%s directory not detected\nPlease create by running:\n\n    mkdir -p %s\n", dir, dir))
	}
	return true
}

var labelPattern = regexp.MustCompile(`(?i)^[a-z0-9-]*$`)

// VerifyFQDNCheck validates the shape of a fully qualified domain name.
type VerifyFQDNCheck struct {
	plan.BaseCheck
	fqdn string
}

func NewVerifyFQDNCheck(fqdn string) *VerifyFQDNCheck {
	return &VerifyFQDNCheck{BaseCheck: plan.NewBaseCheck("Check for FQDN", "Checking for FQDN"), fqdn: fqdn}
}

func (c *VerifyFQDNCheck) Run(context.Context) bool {
	if c.fqdn == "" {
		return c.Fail("FQDN cannot be an empty string")
	}
	if len(c.fqdn) > 255 {
		return c.Fail("A FQDN cannot be longer than 255 characters (trailing dot included)")
	}
	labels := strings.Split(c.fqdn, ".")
	if len(labels) == 1 {
		return c.Fail("A FQDN must have at least one label and a trailing dot, or two labels separated by a dot")
	}
	if strings.HasSuffix(c.fqdn, ".") {
		labels = labels[:len(labels)-1]
	}
	for _, label := range labels {
		if len(label) < 1 || len(label) > 63 {
			return c.Fail("A label in a FQDN cannot be empty or longer than 63 characters")
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return c.Fail("A label in a FQDN cannot start or end with a hyphen (-)")
		}
		if !labelPattern.MatchString(label) {
			return c.Fail("A label in a FQDN can only contain alphanumeric characters and hyphens (-)")
		}
	}
	return true
}

// VerifyHypervisorHostnameCheck fails when libvirt sees a different host
// name than the FQDN the node registers with.
type VerifyHypervisorHostnameCheck struct {
	plan.BaseCheck
	fqdn       string
	hypervisor string
}

func NewVerifyHypervisorHostnameCheck(fqdn, hypervisorHostname string) *VerifyHypervisorHostnameCheck {
	return &VerifyHypervisorHostnameCheck{
		BaseCheck:  plan.NewBaseCheck("Check for Hypervisor Hostname", "Checking if Hypervisor Hostname is same as FQDN"),
		fqdn:       fqdn,
		hypervisor: hypervisorHostname,
	}
}

func (c *VerifyHypervisorHostnameCheck) Run(context.Context) bool {
	if c.fqdn == c.hypervisor {
		return true
	}
	return c.Fail("Host FQDN and Hypervisor hostname perceived by libvirt are different, check `hostname -f` and `/etc/hosts` file")
}

// SystemRequirementsCheck warns, never fails, when the host is below the
// recommended core count or memory.
type SystemRequirementsCheck struct {
	plan.BaseCheck
	minCores int
	minMemKB int64
}

func NewSystemRequirementsCheck(minCores, minMemoryGB int) *SystemRequirementsCheck {
	return &SystemRequirementsCheck{
		BaseCheck: plan.NewBaseCheck("Check for system requirements",
			fmt.Sprintf("Checking for host configuration of minimum %d core and %dG RAM", minCores, minMemoryGB)),
		minCores: minCores,
		minMemKB: int64(minMemoryGB) * 1000 * 1000,
	}
}

func (c *SystemRequirementsCheck) Run(context.Context) bool {
	mem, err := totalMemoryKB(memInfoPath)
	if err != nil {
		c.Warn(fmt.Sprintf("could not determine total RAM: %v", err))
		return true
	}
	if mem < c.minMemKB || numCPUFn() < c.minCores {
		c.Warn(fmt.Sprintf("Minimum system requirements (%d core CPU, %d GB RAM) not met.",
			c.minCores, c.minMemKB/1000/1000))
	}
	return true
}

func totalMemoryKB(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			return strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no MemTotal in %s", path)
}
