package deployments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TypeLocal  = "local"
	TypeRemote = "remote"
)

var (
	ErrNotFound     = errors.New("deployment not found")
	ErrExists       = errors.New("deployment already exists")
	ErrNoActive     = errors.New("no active deployment")
	ErrInvalidEntry = errors.New("invalid deployment")
)

// Deployment is one cluster this host knows how to reach.
type Deployment struct {
	Name               string `yaml:"name" json:"name"`
	URL                string `yaml:"url" json:"url"`
	Type               string `yaml:"type" json:"type"`
	CAFile             string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty"`
}

// Local is the deployment served by this host's clusterd socket.
func Local() Deployment {
	return Deployment{Name: "local", URL: "local", Type: TypeLocal}
}

func (d Deployment) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	switch d.Type {
	case TypeLocal:
	case TypeRemote:
		if !strings.HasPrefix(d.URL, "https://") && !strings.HasPrefix(d.URL, "http://") {
			return fmt.Errorf("%w: %s url %q must be http(s)", ErrInvalidEntry, d.Name, d.URL)
		}
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidEntry, d.Name, d.Type)
	}
	return nil
}

// Registry is the deployments file: the known deployments and which one
// commands act on.
type Registry struct {
	Active      string       `yaml:"active,omitempty" json:"active,omitempty"`
	Deployments []Deployment `yaml:"deployments" json:"deployments"`

	path string
}

// Load reads the registry at path. A missing or empty file is an empty
// registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, Deployments: []Deployment{}}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(content, &node); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(node.Content) == 0 || node.Content[0].Tag == "!!null" {
		return r, nil
	}
	if node.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s is corrupted, delete it or restore from back-up", path)
	}
	if err := node.Content[0].Decode(r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, d := range r.Deployments {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return r, nil
}

func (r *Registry) Path() string { return r.path }

// Save writes the registry through a temporary file so a failed write never
// truncates the previous copy.
func (r *Registry) Save() error {
	if r.path == "" {
		return errors.New("deployments registry has no path")
	}
	content, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.path, err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir for %s: %w", r.path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	return nil
}

func (r *Registry) Get(name string) (Deployment, error) {
	for _, d := range r.Deployments {
		if d.Name == name {
			return d, nil
		}
	}
	return Deployment{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (r *Registry) Current() (Deployment, error) {
	if r.Active == "" {
		return Deployment{}, ErrNoActive
	}
	d, err := r.Get(r.Active)
	if err != nil {
		return Deployment{}, fmt.Errorf("active deployment %s not found in %s: %w", r.Active, r.path, err)
	}
	return d, nil
}

// Add registers d, makes it active and saves.
func (r *Registry) Add(d Deployment) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, err := r.Get(d.Name); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, d.Name)
	}
	r.Deployments = append(r.Deployments, d)
	r.Active = d.Name
	return r.Save()
}

func (r *Registry) Update(d Deployment) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for i := range r.Deployments {
		if r.Deployments[i].Name == d.Name {
			r.Deployments[i] = d
			return r.Save()
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, d.Name)
}

// Switch makes name the active deployment.
func (r *Registry) Switch(name string) error {
	if r.Active == name {
		return nil
	}
	if _, err := r.Get(name); err != nil {
		return err
	}
	r.Active = name
	return r.Save()
}

// Remove forgets name. Removing the active deployment activates the first
// remaining one.
func (r *Registry) Remove(name string) error {
	idx := -1
	for i, d := range r.Deployments {
		if d.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.Deployments = append(r.Deployments[:idx], r.Deployments[idx+1:]...)
	if r.Active == name {
		r.Active = ""
		if len(r.Deployments) > 0 {
			r.Active = r.Deployments[0].Name
		}
	}
	return r.Save()
}
