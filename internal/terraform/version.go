package terraform

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"
)

// Version returns the version reported by `terraform version -json`.
func (h *Helper) Version(ctx context.Context) (*semver.Version, error) {
	stdout, err := h.run(ctx, "version", "version", "-json")
	if err != nil {
		return nil, err
	}
	raw := gjson.Get(stdout, "terraform_version").String()
	if raw == "" {
		return nil, fmt.Errorf("terraform version: no terraform_version in output")
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("terraform version %q: %w", raw, err)
	}
	return v, nil
}

// VersionCheck reports whether the installed terraform satisfies
// constraint, e.g. ">= 1.5.0".
func (h *Helper) VersionCheck(ctx context.Context, constraint string) (*semver.Version, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("terraform version constraint %q: %w", constraint, err)
	}
	v, err := h.Version(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Check(v) {
		return v, fmt.Errorf("terraform %s does not satisfy %s", v, constraint)
	}
	return v, nil
}
