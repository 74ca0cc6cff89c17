package checks

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

func listenLocal(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		t.Fatalf("lookup port: %v", err)
	}
	return host, port
}

func TestWaitForTCPPortSuccess(t *testing.T) {
	host, port := listenLocal(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats, err := WaitForTCPPort(ctx, host, port, 2, 500*time.Millisecond, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if stats.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", stats.Attempts)
	}
}

func TestWaitForTCPPortFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats, err := WaitForTCPPort(ctx, "127.0.0.1", 1, 2, 50*time.Millisecond, 10*time.Millisecond)
	if err == nil {
		t.Fatalf("expected error")
	}
	if stats.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", stats.Attempts)
	}
}

func TestTCPReachableCheck(t *testing.T) {
	host, port := listenLocal(t)
	ok := NewTCPReachableCheck(host, port, 1, time.Second, 0)
	assert.True(t, ok.Run(context.Background()))

	bad := NewTCPReachableCheck("127.0.0.1", 1, 1, 50*time.Millisecond, 0)
	assert.False(t, bad.Run(context.Background()))
	assert.Contains(t, bad.Message(), "127.0.0.1:1")
}

func TestDaemonGroupCheck(t *testing.T) {
	orig := accessFn
	t.Cleanup(func() { accessFn = orig })
	t.Setenv("USER", "ubuntu")

	accessFn = func(string) error { return nil }
	c := NewDaemonGroupCheck("/var/snap/openstack/common/state/control.socket", "snap_daemon")
	assert.True(t, c.Run(context.Background()))

	accessFn = func(string) error { return os.ErrPermission }
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "sudo usermod -a -G snap_daemon ubuntu")
}

func TestLocalShareCheck(t *testing.T) {
	home := t.TempDir()
	orig := homeDirFn
	homeDirFn = func() (string, error) { return home, nil }
	t.Cleanup(func() { homeDirFn = orig })

	c := NewLocalShareCheck()
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "mkdir -p "+filepath.Join(home, ".local", "share"))

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".local", "share"), 0o755))
	assert.True(t, c.Run(context.Background()))
}

func TestVerifyFQDNCheck(t *testing.T) {
	cases := []struct {
		fqdn string
		ok   bool
		msg  string
	}{
		{fqdn: "node1.maas", ok: true},
		{fqdn: "node1.example.com.", ok: true},
		{fqdn: "a.example.com", ok: true},
		{fqdn: "", msg: "empty string"},
		{fqdn: "node1", msg: "at least one label"},
		{fqdn: "node1..com", msg: "cannot be empty"},
		{fqdn: strings.Repeat("a", 64) + ".com", msg: "longer than 63"},
		{fqdn: strings.Repeat("a.", 128) + "com", msg: "255 characters"},
		{fqdn: "-node.com", msg: "hyphen"},
		{fqdn: "node_1.com", msg: "alphanumeric"},
	}
	for _, tc := range cases {
		c := NewVerifyFQDNCheck(tc.fqdn)
		got := c.Run(context.Background())
		assert.Equal(t, tc.ok, got, tc.fqdn)
		if !tc.ok {
			assert.Contains(t, c.Message(), tc.msg, tc.fqdn)
		}
	}
}

func TestVerifyHypervisorHostnameCheck(t *testing.T) {
	assert.True(t, NewVerifyHypervisorHostnameCheck("node1.maas", "node1.maas").Run(context.Background()))
	c := NewVerifyHypervisorHostnameCheck("node1.maas", "node1")
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "hostname -f")
}

func TestSystemRequirementsCheckOnlyWarns(t *testing.T) {
	meminfo := filepath.Join(t.TempDir(), "meminfo")
	require.NoError(t, os.WriteFile(meminfo, []byte("MemTotal:        8000000 kB\nMemFree: 1 kB\n"), 0o644))
	origPath, origCPU := memInfoPath, numCPUFn
	memInfoPath = meminfo
	numCPUFn = func() int { return 8 }
	t.Cleanup(func() { memInfoPath, numCPUFn = origPath, origCPU })

	c := NewSystemRequirementsCheck(4, 16)
	assert.True(t, c.Run(context.Background()))
	assert.Contains(t, c.Warning(), "(4 core CPU, 16 GB RAM) not met")

	require.NoError(t, os.WriteFile(meminfo, []byte("MemTotal:        32000000 kB\n"), 0o644))
	c = NewSystemRequirementsCheck(4, 16)
	assert.True(t, c.Run(context.Background()))
	assert.Empty(t, c.Warning())

	checks := []plan.Check{NewSystemRequirementsCheck(16, 64)}
	assert.NoError(t, plan.RunPreflightChecks(context.Background(), nil, checks, nil))
}

func TestOSReleaseCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	require.NoError(t, os.WriteFile(path, []byte(`PRETTY_NAME="Ubuntu 22.04.3 LTS"
NAME="Ubuntu"
VERSION_ID="22.04"
ID=ubuntu
`), 0o644))
	orig := osReleasePath
	osReleasePath = path
	t.Cleanup(func() { osReleasePath = orig })

	rel, err := ReadOSRelease(path)
	require.NoError(t, err)
	assert.Equal(t, OSRelease{ID: "ubuntu", VersionID: "22.04", Pretty: "Ubuntu 22.04.3 LTS"}, rel)

	assert.True(t, NewOSReleaseCheck([]string{"ubuntu:22.04"}).Run(context.Background()))
	assert.True(t, NewOSReleaseCheck(nil).Run(context.Background()))
	c := NewOSReleaseCheck([]string{"ubuntu:24.04"})
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "Ubuntu 22.04.3 LTS is not supported")
}

func TestSSHKeysCheck(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	dir := t.TempDir()
	good := filepath.Join(dir, "id_ed25519.pub")
	require.NoError(t, os.WriteFile(good, append([]byte("# comment\n"), ssh.MarshalAuthorizedKey(sshPub)...), 0o644))
	junk := filepath.Join(dir, "junk.pub")
	require.NoError(t, os.WriteFile(junk, []byte("not a key\n"), 0o644))

	c := NewSSHKeysCheck(good)
	require.True(t, c.Run(context.Background()))
	assert.Equal(t, []string{ssh.FingerprintSHA256(sshPub)}, c.Fingerprints)

	c = NewSSHKeysCheck(good, junk)
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "no valid ssh public key in "+junk)

	c = NewSSHKeysCheck(filepath.Join(dir, "missing.pub"))
	assert.False(t, c.Run(context.Background()))
}

type fakeMembers struct {
	members []clusterd.Member
	err     error
}

func (f fakeMembers) Members(context.Context) ([]clusterd.Member, error) { return f.members, f.err }

func TestClusterdMemberCheck(t *testing.T) {
	notInit := &clusterd.Error{Kind: clusterd.KindInvalidOperation, Err: clusterd.ErrNotInitialized}

	c := NewClusterdMemberCheck(fakeMembers{err: notInit}, "")
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "sunbeam cluster bootstrap")

	c = NewClusterdMemberCheck(fakeMembers{err: errors.New("boom")}, "")
	assert.False(t, c.Run(context.Background()))
	assert.Equal(t, "boom", c.Message())

	members := fakeMembers{members: []clusterd.Member{{Name: "node1"}}}
	assert.True(t, NewClusterdMemberCheck(members, "").Run(context.Background()))
	assert.True(t, NewClusterdMemberCheck(members, "node1").Run(context.Background()))
	c = NewClusterdMemberCheck(members, "node2")
	assert.False(t, c.Run(context.Background()))
	assert.Contains(t, c.Message(), "node2")
}
