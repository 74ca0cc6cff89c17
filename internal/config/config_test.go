package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid defaults, got error: %v", err)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if cfg.Clusterd.Socket != "/var/snap/openstack/common/state/control.socket" {
		t.Fatalf("unexpected socket default: %q", cfg.Clusterd.Socket)
	}
	if cfg.Clusterd.RequestTimeout() != time.Minute {
		t.Fatalf("unexpected request timeout: %s", cfg.Clusterd.RequestTimeout())
	}
	if cfg.Terraform.ProviderMirror() != "/snap/openstack/current/usr/share/terraform-providers" {
		t.Fatalf("unexpected provider mirror: %q", cfg.Terraform.ProviderMirror())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	content := []byte(`
clusterd:
  socket: /tmp/from-file.socket
  request_timeout_seconds: 30
terraform:
  binary: /usr/bin/terraform
  parallelism: 4
timeouts:
  tcp_retries: 5
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	t.Setenv("SUNBEAM_CLUSTERD_SOCKET", "/run/clusterd.socket")
	t.Setenv("SUNBEAM_CLUSTERD_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("SUNBEAM_TERRAFORM_BINARY", "/opt/terraform")
	t.Setenv("SUNBEAM_DEPLOYMENTS_FILE", "/etc/sunbeam/deployments.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Clusterd.Socket != "/run/clusterd.socket" || !cfg.Clusterd.InsecureSkipVerify {
		t.Fatalf("clusterd overrides not applied: %#v", cfg.Clusterd)
	}
	if cfg.Clusterd.RequestTimeoutSeconds != 30 {
		t.Fatalf("file value lost: %d", cfg.Clusterd.RequestTimeoutSeconds)
	}
	if cfg.Terraform.Binary != "/opt/terraform" || cfg.Terraform.Parallelism != 4 {
		t.Fatalf("terraform settings wrong: %#v", cfg.Terraform)
	}
	if cfg.Deployments.File != "/etc/sunbeam/deployments.yaml" {
		t.Fatalf("deployments override missing: %q", cfg.Deployments.File)
	}
	if cfg.Timeouts.TCPRetries != 5 || cfg.Timeouts.TCPConnectSeconds != 5 {
		t.Fatalf("timeouts not merged over defaults: %#v", cfg.Timeouts)
	}
}

func TestLoadRejectsBadBoolOverride(t *testing.T) {
	t.Setenv("SUNBEAM_CLUSTERD_INSECURE_SKIP_VERIFY", "sometimes")
	if _, err := Default(); err == nil {
		t.Fatalf("expected error for invalid bool override")
	}
}

func TestLoadExpandsEnvAndHomePaths(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("SITE", "lab")

	path := filepath.Join(dir, "cfg.yaml")
	content := []byte(`
deployments:
  file: ~/.local/share/openstack/${SITE}.yaml
logging:
  file: ~/logs/sunbeam.log
preflight:
  ssh_keys: [~/.ssh/id_ed25519.pub]
terraform:
  plans_dir: ~/plans
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Deployments.File != filepath.Join(home, ".local/share/openstack/lab.yaml") {
		t.Fatalf("deployments.file not expanded: %q", cfg.Deployments.File)
	}
	if !strings.HasPrefix(cfg.Logging.File, home) {
		t.Fatalf("logging.file not expanded: %q", cfg.Logging.File)
	}
	if !strings.HasPrefix(cfg.Preflight.SSHKeys[0], home) {
		t.Fatalf("ssh key not expanded: %q", cfg.Preflight.SSHKeys[0])
	}
	if cfg.Terraform.PlansDir != filepath.Join(home, "plans") {
		t.Fatalf("plans_dir not expanded: %q", cfg.Terraform.PlansDir)
	}
}

func TestTimeoutDurations(t *testing.T) {
	tm := TimeoutsConfig{
		TCPConnectSeconds:    3,
		TCPRetryDelaySeconds: 7,
		TotalMinutes:         2,
	}
	if tm.TCPConnectDuration() != 3*time.Second {
		t.Fatalf("unexpected connect duration")
	}
	if tm.TCPRetryDelayDuration() != 7*time.Second {
		t.Fatalf("unexpected retry delay")
	}
	if tm.TotalDuration() != 2*time.Minute {
		t.Fatalf("unexpected total duration")
	}
}

func TestValidateErrorBranches(t *testing.T) {
	base := defaultConfig()

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "missing socket", mut: func(c *Config) { c.Clusterd.Socket = " " }},
		{name: "invalid request timeout", mut: func(c *Config) { c.Clusterd.RequestTimeoutSeconds = 0 }},
		{name: "missing deployments file", mut: func(c *Config) { c.Deployments.File = "" }},
		{name: "negative log backups", mut: func(c *Config) { c.Logging.MaxBackups = -1 }},
		{name: "negative min cores", mut: func(c *Config) { c.Preflight.MinCores = -1 }},
		{name: "malformed supported os", mut: func(c *Config) { c.Preflight.SupportedOS = []string{"ubuntu"} }},
		{name: "missing terraform binary", mut: func(c *Config) { c.Terraform.Binary = "" }},
		{name: "invalid min version", mut: func(c *Config) { c.Terraform.MinVersion = "newest" }},
		{name: "negative parallelism", mut: func(c *Config) { c.Terraform.Parallelism = -2 }},
		{name: "invalid connect timeout", mut: func(c *Config) { c.Timeouts.TCPConnectSeconds = 0 }},
		{name: "invalid retries", mut: func(c *Config) { c.Timeouts.TCPRetries = 0 }},
		{name: "invalid total minutes", mut: func(c *Config) { c.Timeouts.TotalMinutes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
