package checks

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/ini.v1"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

var osReleasePath = "/etc/os-release"

// OSRelease is the subset of /etc/os-release the checks look at.
type OSRelease struct {
	ID        string
	VersionID string
	Pretty    string
}

// ReadOSRelease parses an os-release file.
func ReadOSRelease(path string) (OSRelease, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return OSRelease{}, fmt.Errorf("read %s: %w", path, err)
	}
	sec := f.Section(ini.DefaultSection)
	return OSRelease{
		ID:        sec.Key("ID").String(),
		VersionID: sec.Key("VERSION_ID").String(),
		Pretty:    sec.Key("PRETTY_NAME").String(),
	}, nil
}

// OSReleaseCheck fails unless the host runs one of the supported
// distribution releases, written as "<id>:<version_id>" (e.g.
// "ubuntu:22.04"). An empty list accepts any release.
type OSReleaseCheck struct {
	plan.BaseCheck
	supported []string
}

func NewOSReleaseCheck(supported []string) *OSReleaseCheck {
	return &OSReleaseCheck{
		BaseCheck: plan.NewBaseCheck("Check for operating system", "Checking the host operating system release"),
		supported: supported,
	}
}

func (c *OSReleaseCheck) Run(context.Context) bool {
	rel, err := ReadOSRelease(osReleasePath)
	if err != nil {
		return c.Fail(err.Error())
	}
	if len(c.supported) == 0 {
		return true
	}
	if slices.Contains(c.supported, rel.ID+":"+rel.VersionID) {
		return true
	}
	name := rel.Pretty
	if name == "" {
		name = rel.ID + " " + rel.VersionID
	}
	return c.Fail(fmt.Sprintf("%s is not supported, use one of: %s", name, strings.Join(c.supported, ", ")))
}

// SSHKeysCheck fails when a public key file is missing or holds no valid
// key. Fingerprints of the keys it found are kept for reporting.
type SSHKeysCheck struct {
	plan.BaseCheck
	paths        []string
	Fingerprints []string
}

func NewSSHKeysCheck(paths ...string) *SSHKeysCheck {
	return &SSHKeysCheck{
		BaseCheck: plan.NewBaseCheck("Check for ssh keys", "Checking for usable ssh public keys"),
		paths:     paths,
	}
}

func (c *SSHKeysCheck) Run(context.Context) bool {
	c.Fingerprints = nil
	for _, path := range c.paths {
		fps, err := publicKeyFingerprints(path)
		if err != nil {
			return c.Fail(err.Error())
		}
		if len(fps) == 0 {
			return c.Fail(fmt.Sprintf("no valid ssh public key in %s\nGenerate one by running:\n\n    ssh-keygen -t ed25519\n", path))
		}
		c.Fingerprints = append(c.Fingerprints, fps...)
	}
	return true
}

func publicKeyFingerprints(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ssh public key %s: %w", path, err)
	}
	var fps []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			continue
		}
		fps = append(fps, ssh.FingerprintSHA256(key))
	}
	return fps, scanner.Err()
}
