package clusterd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ExtendedService wraps the Sunbeam-specific clusterd API under /1.0.
type ExtendedService struct {
	service
}

// Nodes

func (s ExtendedService) AddNodeInfo(ctx context.Context, name string, roles []string) error {
	_, err := s.post(ctx, "/1.0/nodes", map[string]any{"name": name, "role": roles})
	return err
}

// ListNodes returns all nodes, or only those holding one of roles.
func (s ExtendedService) ListNodes(ctx context.Context, roles ...string) ([]Node, error) {
	var query url.Values
	if len(roles) > 0 {
		query = url.Values{"role": roles}
	}
	data, err := s.get(ctx, "/1.0/nodes", query)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	if err := metadata(data, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s ExtendedService) GetNodeInfo(ctx context.Context, name string) (Node, error) {
	data, err := s.get(ctx, "/1.0/nodes/"+url.PathEscape(name), nil)
	if err != nil {
		return Node{}, err
	}
	var node Node
	if err := metadata(data, &node); err != nil {
		return Node{}, err
	}
	return node, nil
}

// UpdateNodeInfo sets role and machine id. A nil roles keeps the stored
// roles; machineID -1 leaves the machine unset.
func (s ExtendedService) UpdateNodeInfo(ctx context.Context, name string, roles []string, machineID int) error {
	body := map[string]any{"role": roles, "machineid": machineID}
	_, err := s.put(ctx, "/1.0/nodes/"+url.PathEscape(name), body)
	return err
}

func (s ExtendedService) RemoveNodeInfo(ctx context.Context, name string) error {
	_, err := s.delete(ctx, "/1.0/nodes/"+url.PathEscape(name))
	return err
}

// Juju users

func (s ExtendedService) AddJujuUser(ctx context.Context, name, token string) error {
	_, err := s.post(ctx, "/1.0/jujuusers", JujuUser{Username: name, Token: token})
	return err
}

func (s ExtendedService) ListJujuUsers(ctx context.Context) ([]JujuUser, error) {
	data, err := s.get(ctx, "/1.0/jujuusers", nil)
	if err != nil {
		return nil, err
	}
	var users []JujuUser
	if err := metadata(data, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s ExtendedService) GetJujuUser(ctx context.Context, name string) (JujuUser, error) {
	data, err := s.get(ctx, "/1.0/jujuusers/"+url.PathEscape(name), nil)
	if err != nil {
		return JujuUser{}, jujuUserError(err)
	}
	var user JujuUser
	if err := metadata(data, &user); err != nil {
		return JujuUser{}, err
	}
	return user, nil
}

func (s ExtendedService) RemoveJujuUser(ctx context.Context, name string) error {
	_, err := s.delete(ctx, "/1.0/jujuusers/"+url.PathEscape(name))
	return jujuUserError(err)
}

// The juju user endpoints report absence only through the status code.
func jujuUserError(err error) error {
	var he *HTTPError
	if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
		return &Error{Kind: KindNotFound, Err: ErrJujuUserNotFound, Message: he.Message, StatusCode: he.StatusCode}
	}
	return err
}

// Config

// GetConfig returns the raw value stored under key.
func (s ExtendedService) GetConfig(ctx context.Context, key string) (string, error) {
	data, err := s.get(ctx, "/1.0/config/"+url.PathEscape(key), nil)
	if err != nil {
		return "", err
	}
	var value string
	if err := metadata(data, &value); err != nil {
		return "", err
	}
	return value, nil
}

// UpdateConfig stores value verbatim under key.
func (s ExtendedService) UpdateConfig(ctx context.Context, key, value string) error {
	_, err := s.put(ctx, "/1.0/config/"+url.PathEscape(key), value)
	return err
}

func (s ExtendedService) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.delete(ctx, "/1.0/config/"+url.PathEscape(key))
	return err
}

// ReadConfig decodes the JSON document stored under key into out.
func (s ExtendedService) ReadConfig(ctx context.Context, key string, out any) error {
	raw, err := s.GetConfig(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode config %s: %w", key, err)
	}
	return nil
}

// WriteConfig stores v as a JSON document under key.
func (s ExtendedService) WriteConfig(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", key, err)
	}
	return s.UpdateConfig(ctx, key, string(data))
}

// Manifests

func (s ExtendedService) ListManifests(ctx context.Context) ([]Manifest, error) {
	data, err := s.get(ctx, "/1.0/manifests", nil)
	if err != nil {
		return nil, err
	}
	var manifests []Manifest
	if err := metadata(data, &manifests); err != nil {
		return nil, err
	}
	return manifests, nil
}

// GetManifest fetches a manifest by id. The id "latest" returns the most
// recently applied one.
func (s ExtendedService) GetManifest(ctx context.Context, id string) (Manifest, error) {
	data, err := s.get(ctx, "/1.0/manifests/"+url.PathEscape(id), nil)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := metadata(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (s ExtendedService) AddManifest(ctx context.Context, id, data string) error {
	_, err := s.post(ctx, "/1.0/manifests", Manifest{ManifestID: id, Data: data})
	return err
}

func (s ExtendedService) DeleteManifest(ctx context.Context, id string) error {
	_, err := s.delete(ctx, "/1.0/manifests/"+url.PathEscape(id))
	return err
}

// Terraform state backend

func (s ExtendedService) ListTerraformPlans(ctx context.Context) ([]string, error) {
	data, err := s.get(ctx, "/1.0/terraformstate", nil)
	if err != nil {
		return nil, err
	}
	var plans []string
	if err := metadata(data, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s ExtendedService) ListTerraformLocks(ctx context.Context) ([]string, error) {
	data, err := s.get(ctx, "/1.0/terraformlock", nil)
	if err != nil {
		return nil, err
	}
	var locks []string
	if err := metadata(data, &locks); err != nil {
		return nil, err
	}
	return locks, nil
}

// GetTerraformLock returns the lock held on plan. The endpoint answers
// outside the usual envelope with the lock document encoded as a JSON
// string; a bare document is accepted too.
func (s ExtendedService) GetTerraformLock(ctx context.Context, plan string) (Lock, error) {
	data, err := s.get(ctx, "/1.0/terraformlock/"+url.PathEscape(plan), nil)
	if err != nil {
		return Lock{}, err
	}
	var doc string
	if err := json.Unmarshal(data, &doc); err == nil {
		data = []byte(doc)
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return Lock{}, fmt.Errorf("decode terraform lock %s: %w", plan, err)
	}
	return lock, nil
}

func (s ExtendedService) UnlockTerraformPlan(ctx context.Context, plan string, lock Lock) error {
	_, err := s.put(ctx, "/1.0/terraformunlock/"+url.PathEscape(plan), lock)
	return err
}
