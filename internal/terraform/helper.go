package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/cluster"
)

const (
	BackendLocal = "local"
	BackendHTTP  = "http"

	// DefaultBinary is resolved through PATH.
	DefaultBinary = "terraform"

	backendFile = "backend.tf"
	tfvarsFile  = "terraform.tfvars.json"
	rcFile      = ".terraformrc"
)

var localIPFn = cluster.LocalIP

// Helper drives one Terraform plan directory.
type Helper struct {
	Binary string
	Path   string
	Plan   string
	Env    map[string]string
	// Parallelism is passed to apply and destroy when positive.
	Parallelism int
	Backend     string
	// BackendAddress is the clusterd base URL hosting the http backend.
	// Empty means this host on the clusterd port.
	BackendAddress string
	// ProviderMirror is a local provider directory. When set, terraform is
	// pointed at a generated CLI config that installs only from it.
	ProviderMirror string
	Logger         *slog.Logger
}

func (h *Helper) binary() string {
	if h.Binary == "" {
		return DefaultBinary
	}
	return h.Binary
}

func (h *Helper) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Helper) rcPath() string { return filepath.Join(h.Path, rcFile) }

// BackendConfig returns the backend settings written to backend.tf. It is
// empty for the local backend.
func (h *Helper) BackendConfig() (map[string]any, error) {
	if h.Backend != BackendHTTP {
		return map[string]any{}, nil
	}
	base := strings.TrimRight(h.BackendAddress, "/")
	if base == "" {
		ip, err := localIPFn()
		if err != nil {
			return nil, fmt.Errorf("terraform backend address: %w", err)
		}
		base = "https://" + cluster.ClusterAddress(ip)
	}
	return map[string]any{
		"address":                fmt.Sprintf("%s/1.0/terraformstate/%s", base, h.Plan),
		"update_method":          "PUT",
		"lock_address":           fmt.Sprintf("%s/1.0/terraformlock/%s", base, h.Plan),
		"lock_method":            "PUT",
		"unlock_address":         fmt.Sprintf("%s/1.0/terraformunlock/%s", base, h.Plan),
		"unlock_method":          "PUT",
		"skip_cert_verification": true,
	}, nil
}

var backendKeys = []string{
	"address", "update_method", "lock_address", "lock_method",
	"unlock_address", "unlock_method", "skip_cert_verification",
}

// WriteBackend writes backend.tf for the http backend. It does nothing for
// the local backend.
func (h *Helper) WriteBackend() error {
	if h.Backend != BackendHTTP {
		return nil
	}
	cfg, err := h.BackendConfig()
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("terraform {\n  backend \"http\" {\n")
	for _, k := range backendKeys {
		v, err := json.Marshal(cfg[k])
		if err != nil {
			return fmt.Errorf("encode backend %s: %w", k, err)
		}
		fmt.Fprintf(&b, "    %-22s = %s\n", k, v)
	}
	b.WriteString("  }\n}\n")
	return writeFile(filepath.Join(h.Path, backendFile), b.String())
}

// WriteTFVars writes vars as terraform.tfvars.json in the plan directory.
func (h *Helper) WriteTFVars(vars map[string]any) error {
	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encode tfvars for %s: %w", h.Plan, err)
	}
	return writeFile(filepath.Join(h.Path, tfvarsFile), string(data))
}

func (h *Helper) writeRC() error {
	if h.ProviderMirror == "" {
		return nil
	}
	rc := fmt.Sprintf("disable_checkpoint = true\nprovider_installation {\n  filesystem_mirror {\n    path    = %s\n  }\n}\n",
		strconv.Quote(h.ProviderMirror))
	return writeFile(h.rcPath(), rc)
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Prepare copies the plan source tree into Path. Files already in Path are
// overwritten; state and lock files Terraform created there are kept.
func (h *Helper) Prepare(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("terraform plan %s source: %w", h.Plan, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("terraform plan %s source %s is not a directory", h.Plan, src)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(h.Path, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}
		return nil
	})
}

// Init writes the backend and CLI config then runs terraform init.
func (h *Helper) Init(ctx context.Context) error {
	if err := h.WriteBackend(); err != nil {
		return err
	}
	if err := h.writeRC(); err != nil {
		return err
	}
	_, err := h.run(ctx, "init", "init", "-upgrade", "-no-color")
	return err
}

func (h *Helper) Apply(ctx context.Context) error {
	args := []string{"apply", "-auto-approve", "-no-color"}
	if h.Parallelism > 0 {
		args = append(args, fmt.Sprintf("-parallelism=%d", h.Parallelism))
	}
	_, err := h.run(ctx, "apply", args...)
	return err
}

func (h *Helper) Destroy(ctx context.Context) error {
	args := []string{"destroy", "-auto-approve", "-no-color"}
	if h.Parallelism > 0 {
		args = append(args, fmt.Sprintf("-parallelism=%d", h.Parallelism))
	}
	_, err := h.run(ctx, "destroy", args...)
	return err
}

// Output returns the plan's outputs, unwrapped from terraform's
// {"name": {"value": ...}} form.
func (h *Helper) Output(ctx context.Context) (map[string]any, error) {
	stdout, err := h.run(ctx, "output", "output", "-json", "-no-color")
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(stdout) {
		return nil, fmt.Errorf("terraform output for %s: invalid json", h.Plan)
	}
	out := map[string]any{}
	gjson.Parse(stdout).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Get("value").Value()
		return true
	})
	return out, nil
}

// Sync refreshes the state from the running resources.
func (h *Helper) Sync(ctx context.Context) error {
	_, err := h.run(ctx, "sync", "apply", "-refresh-only", "-auto-approve")
	return err
}
