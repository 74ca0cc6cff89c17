package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Config holds sunbeam CLI settings.
type Config struct {
	Clusterd    ClusterdConfig    `yaml:"clusterd"`
	Deployments DeploymentsConfig `yaml:"deployments"`
	Logging     LoggingConfig     `yaml:"logging"`
	Preflight   PreflightConfig   `yaml:"preflight"`
	Terraform   TerraformConfig   `yaml:"terraform"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
}

type ClusterdConfig struct {
	Socket string `yaml:"socket"`
	// Group owning the socket; members may run commands without sudo.
	Group                 string `yaml:"group"`
	CAFile                string `yaml:"ca_file"`
	InsecureSkipVerify    bool   `yaml:"insecure_skip_verify"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

type DeploymentsConfig struct {
	File string `yaml:"file"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type PreflightConfig struct {
	MinCores    int      `yaml:"min_cores"`
	MinMemoryGB int      `yaml:"min_memory_gb"`
	SupportedOS []string `yaml:"supported_os"`
	SSHKeys     []string `yaml:"ssh_keys"`
}

type TerraformConfig struct {
	Binary      string `yaml:"binary"`
	SnapDir     string `yaml:"snap_dir"`
	PlansDir    string `yaml:"plans_dir"`
	MinVersion  string `yaml:"min_version"`
	Parallelism int    `yaml:"parallelism"`
}

// ProviderMirror is the provider directory shipped in the snap.
func (t TerraformConfig) ProviderMirror() string {
	if t.SnapDir == "" {
		return ""
	}
	return filepath.Join(t.SnapDir, "usr", "share", "terraform-providers")
}

type TimeoutsConfig struct {
	TCPConnectSeconds    int `yaml:"tcp_connect_seconds"`
	TCPRetries           int `yaml:"tcp_retries"`
	TCPRetryDelaySeconds int `yaml:"tcp_retry_delay_seconds"`
	TotalMinutes         int `yaml:"total_minutes"`
}

func (c ClusterdConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (t TimeoutsConfig) TCPConnectDuration() time.Duration {
	return time.Duration(t.TCPConnectSeconds) * time.Second
}

func (t TimeoutsConfig) TCPRetryDelayDuration() time.Duration {
	return time.Duration(t.TCPRetryDelaySeconds) * time.Second
}

func (t TimeoutsConfig) TotalDuration() time.Duration {
	return time.Duration(t.TotalMinutes) * time.Minute
}

func defaultConfig() Config {
	return Config{
		Clusterd: ClusterdConfig{
			Socket:                "/var/snap/openstack/common/state/control.socket",
			Group:                 "snap_daemon",
			RequestTimeoutSeconds: 60,
		},
		Deployments: DeploymentsConfig{File: "~/.local/share/openstack/deployments.yaml"},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Preflight: PreflightConfig{
			MinCores:    4,
			MinMemoryGB: 16,
		},
		Terraform: TerraformConfig{
			Binary:     "terraform",
			SnapDir:    "/snap/openstack/current",
			PlansDir:   "~/.local/share/openstack/plans",
			MinVersion: ">= 1.5.0",
		},
		Timeouts: TimeoutsConfig{
			TCPConnectSeconds:    5,
			TCPRetries:           3,
			TCPRetryDelaySeconds: 2,
			TotalMinutes:         60,
		},
	}
}

// Default returns the built-in configuration with SUNBEAM_* overrides.
func Default() (Config, error) {
	return Load("")
}

// Load reads path over the defaults. An empty path loads only the defaults
// and environment overrides.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(content))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	expandHomePaths(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SUNBEAM_CLUSTERD_SOCKET"); v != "" {
		cfg.Clusterd.Socket = v
	}
	if v := os.Getenv("SUNBEAM_CLUSTERD_CA_FILE"); v != "" {
		cfg.Clusterd.CAFile = v
	}
	if v := os.Getenv("SUNBEAM_CLUSTERD_INSECURE_SKIP_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SUNBEAM_CLUSTERD_INSECURE_SKIP_VERIFY: %w", err)
		}
		cfg.Clusterd.InsecureSkipVerify = b
	}
	if v := os.Getenv("SUNBEAM_DEPLOYMENTS_FILE"); v != "" {
		cfg.Deployments.File = v
	}
	if v := os.Getenv("SUNBEAM_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("SUNBEAM_TERRAFORM_BINARY"); v != "" {
		cfg.Terraform.Binary = v
	}
	if v := os.Getenv("SUNBEAM_SNAP_DIR"); v != "" {
		cfg.Terraform.SnapDir = v
	}
	if v := os.Getenv("SUNBEAM_PLANS_DIR"); v != "" {
		cfg.Terraform.PlansDir = v
	}
	return nil
}

func expandHomePaths(cfg *Config) {
	cfg.Clusterd.CAFile = expandHome(cfg.Clusterd.CAFile)
	cfg.Deployments.File = expandHome(cfg.Deployments.File)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.Terraform.PlansDir = expandHome(cfg.Terraform.PlansDir)
	for i, k := range cfg.Preflight.SSHKeys {
		cfg.Preflight.SSHKeys[i] = expandHome(k)
	}
}

func expandHome(path string) string {
	p := strings.TrimSpace(path)
	if p == "" || !strings.HasPrefix(p, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, strings.TrimPrefix(p, "~/"))
	}
	return path
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Clusterd.Socket) == "" {
		return errors.New("clusterd.socket is required")
	}
	if c.Clusterd.RequestTimeoutSeconds <= 0 {
		return errors.New("clusterd.request_timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Deployments.File) == "" {
		return errors.New("deployments.file is required")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging limits must be >= 0")
	}
	if c.Preflight.MinCores < 0 {
		return errors.New("preflight.min_cores must be >= 0")
	}
	if c.Preflight.MinMemoryGB < 0 {
		return errors.New("preflight.min_memory_gb must be >= 0")
	}
	for _, entry := range c.Preflight.SupportedOS {
		if id, version, ok := strings.Cut(entry, ":"); !ok || id == "" || version == "" {
			return fmt.Errorf("preflight.supported_os entries must be <id>:<version_id> (got %q)", entry)
		}
	}
	if strings.TrimSpace(c.Terraform.Binary) == "" {
		return errors.New("terraform.binary is required")
	}
	if strings.TrimSpace(c.Terraform.PlansDir) == "" {
		return errors.New("terraform.plans_dir is required")
	}
	if c.Terraform.MinVersion != "" {
		if _, err := semver.NewConstraint(c.Terraform.MinVersion); err != nil {
			return fmt.Errorf("terraform.min_version: %w", err)
		}
	}
	if c.Terraform.Parallelism < 0 {
		return errors.New("terraform.parallelism must be >= 0")
	}
	if c.Timeouts.TCPConnectSeconds <= 0 {
		return errors.New("timeouts.tcp_connect_seconds must be > 0")
	}
	if c.Timeouts.TCPRetries <= 0 {
		return errors.New("timeouts.tcp_retries must be > 0")
	}
	if c.Timeouts.TCPRetryDelaySeconds < 0 {
		return errors.New("timeouts.tcp_retry_delay_seconds must be >= 0")
	}
	if c.Timeouts.TotalMinutes <= 0 {
		return errors.New("timeouts.total_minutes must be > 0")
	}
	return nil
}
