package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedVersions is the range of manifest format versions this tool reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// Empty is stored when no manifest file is given.
const Empty = "charms: {}\nterraform: {}\n"

type JujuManifest struct {
	BootstrapArgs []string `yaml:"bootstrap-args,omitempty" json:"bootstrap-args,omitempty"`
}

type CharmManifest struct {
	Channel  string            `yaml:"channel,omitempty" json:"channel,omitempty"`
	Revision *int              `yaml:"revision,omitempty" json:"revision,omitempty"`
	Rocks    map[string]string `yaml:"rocks,omitempty" json:"rocks,omitempty"`
	Config   map[string]any    `yaml:"config,omitempty" json:"config,omitempty"`
	Source   string            `yaml:"source,omitempty" json:"source,omitempty"`
}

type TerraformManifest struct {
	Source string `yaml:"source" json:"source"`
}

// Manifest pins charm channels and Terraform plan sources for a deployment.
type Manifest struct {
	Version   string                        `yaml:"version,omitempty" json:"version,omitempty"`
	Juju      *JujuManifest                 `yaml:"juju,omitempty" json:"juju,omitempty"`
	Charms    map[string]*CharmManifest     `yaml:"charms,omitempty" json:"charms,omitempty"`
	Terraform map[string]*TerraformManifest `yaml:"terraform,omitempty" json:"terraform,omitempty"`
}

// Defaults returns the compiled-in manifest. Plan sources live under
// snapDir/etc.
func Defaults(snapDir string) Manifest {
	m := Manifest{
		Charms:    map[string]*CharmManifest{},
		Terraform: map[string]*TerraformManifest{},
	}
	for charm, channel := range openstackK8sCharms {
		m.Charms[charm] = &CharmManifest{Channel: channel}
	}
	for charm, channel := range machineCharms {
		m.Charms[charm] = &CharmManifest{Channel: channel}
	}
	for plan, dir := range PlanDirs {
		m.Terraform[plan] = &TerraformManifest{Source: filepath.Join(snapDir, "etc", dir)}
	}
	return m
}

// Parse decodes a manifest document.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// Load reads a manifest file without applying defaults.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Overlay returns base with every field set in override applied on top.
// Charms and plans are merged by name.
func Overlay(base, override Manifest) (Manifest, error) {
	out := base.clone()
	if err := mergo.Merge(&out, override.clone(), mergo.WithOverride); err != nil {
		return Manifest{}, fmt.Errorf("merge manifest: %w", err)
	}
	return out, nil
}

// LoadWithDefaults reads path and overlays it on the defaults.
func LoadWithDefaults(path, snapDir string) (Manifest, error) {
	m, err := Load(path)
	if err != nil {
		return Manifest{}, err
	}
	merged, err := Overlay(Defaults(snapDir), m)
	if err != nil {
		return Manifest{}, err
	}
	return merged, merged.Validate()
}

// Validate checks the format version and that only known plans are named.
func (m Manifest) Validate() error {
	if m.Version != "" {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("manifest version %q: %w", m.Version, err)
		}
		c, err := semver.NewConstraint(SupportedVersions)
		if err != nil {
			return err
		}
		if !c.Check(v) {
			return fmt.Errorf("manifest version %s not supported, want %s", v, SupportedVersions)
		}
	}
	var unknown []string
	for plan := range m.Terraform {
		if _, ok := PlanDirs[plan]; !ok {
			unknown = append(unknown, plan)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown terraform plans %s, expected one of %s",
			strings.Join(unknown, ", "), strings.Join(PlanNames(), ", "))
	}
	return nil
}

// PlanNames lists the known Terraform plans in name order.
func PlanNames() []string {
	names := make([]string, 0, len(PlanDirs))
	for name := range PlanDirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TFVars returns the Terraform variables the manifest sets for plan.
func (m Manifest) TFVars(plan string) map[string]any {
	vars := map[string]any{}
	for charm, names := range tfvarMap[plan] {
		c := m.Charms[charm]
		if c == nil {
			continue
		}
		if c.Channel != "" {
			vars[names.Channel] = c.Channel
		}
		if c.Revision != nil {
			vars[names.Revision] = *c.Revision
		}
		if len(c.Config) > 0 {
			vars[names.Config] = c.Config
		}
	}
	return vars
}

// ManagedTFVars lists every variable name the manifest can set for plan,
// whether or not this manifest sets it.
func ManagedTFVars(plan string) []string {
	var names []string
	for _, v := range tfvarMap[plan] {
		names = append(names, v.Channel, v.Revision, v.Config)
	}
	sort.Strings(names)
	return names
}

// PlanSource returns the source directory of a Terraform plan.
func (m Manifest) PlanSource(plan string) (string, error) {
	tf, ok := m.Terraform[plan]
	if !ok || tf == nil || tf.Source == "" {
		return "", fmt.Errorf("manifest has no source for terraform plan %s", plan)
	}
	return tf.Source, nil
}

func (m Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

func (m Manifest) clone() Manifest {
	out := Manifest{Version: m.Version}
	if m.Juju != nil {
		j := *m.Juju
		j.BootstrapArgs = append([]string(nil), m.Juju.BootstrapArgs...)
		out.Juju = &j
	}
	if m.Charms != nil {
		out.Charms = make(map[string]*CharmManifest, len(m.Charms))
		for k, v := range m.Charms {
			if v == nil {
				continue
			}
			c := *v
			out.Charms[k] = &c
		}
	}
	if m.Terraform != nil {
		out.Terraform = make(map[string]*TerraformManifest, len(m.Terraform))
		for k, v := range m.Terraform {
			if v == nil {
				continue
			}
			t := *v
			out.Terraform[k] = &t
		}
	}
	return out
}
