package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	m := Defaults("/snap/openstack/current")
	assert.Equal(t, "2023.2/edge", m.Charms["keystone"].Channel)
	assert.Equal(t, "legacy/stable", m.Charms["microk8s"].Channel)
	src, err := m.PlanSource("openstack-plan")
	require.NoError(t, err)
	assert.Equal(t, "/snap/openstack/current/etc/deploy-openstack", src)
	require.NoError(t, m.Validate())
}

func TestLoadWithDefaultsOverlays(t *testing.T) {
	path := writeManifest(t, `version: 1.2.0
juju:
  bootstrap-args: [--debug]
charms:
  keystone:
    channel: 2024.1/stable
    config:
      debug: true
  custom:
    channel: latest/edge
terraform:
  openstack-plan:
    source: /tmp/plans/openstack
`)
	m, err := LoadWithDefaults(path, "/snap/openstack/current")
	require.NoError(t, err)

	assert.Equal(t, []string{"--debug"}, m.Juju.BootstrapArgs)
	assert.Equal(t, "2024.1/stable", m.Charms["keystone"].Channel)
	assert.Equal(t, true, m.Charms["keystone"].Config["debug"])
	assert.Equal(t, "2023.2/edge", m.Charms["glance"].Channel)
	assert.Equal(t, "latest/edge", m.Charms["custom"].Channel)
	assert.Equal(t, "/tmp/plans/openstack", m.Terraform["openstack-plan"].Source)
	assert.Equal(t, "/snap/openstack/current/etc/deploy-microk8s", m.Terraform["microk8s-plan"].Source)
}

func TestOverlayLeavesBaseUntouched(t *testing.T) {
	base := Defaults("/snap")
	_, err := Overlay(base, Manifest{Charms: map[string]*CharmManifest{"nova": {Channel: "other"}}})
	require.NoError(t, err)
	assert.Equal(t, "2023.2/edge", base.Charms["nova"].Channel)
}

func TestValidateRejectsUnknownPlanAndVersion(t *testing.T) {
	m := Manifest{Terraform: map[string]*TerraformManifest{"bogus-plan": {Source: "/x"}}}
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus-plan")

	assert.Error(t, Manifest{Version: "2.0.0"}.Validate())
	assert.Error(t, Manifest{Version: "not-a-version"}.Validate())
	assert.NoError(t, Manifest{Version: "1.0.0"}.Validate())
}

func TestTFVars(t *testing.T) {
	rev := 42
	m := Manifest{Charms: map[string]*CharmManifest{
		"keystone": {Channel: "2023.2/stable", Revision: &rev, Config: map[string]any{"debug": true}},
		"microk8s": {Channel: "1.28/stable"},
	}}
	assert.Equal(t, map[string]any{
		"keystone-channel":  "2023.2/stable",
		"keystone-revision": 42,
		"keystone-config":   map[string]any{"debug": true},
	}, m.TFVars("openstack-plan"))
	assert.Equal(t, map[string]any{"charm_microk8s_channel": "1.28/stable"}, m.TFVars("microk8s-plan"))
	assert.Empty(t, m.TFVars("demo-setup"))
}

type memoryStore struct {
	manifests []clusterd.Manifest
}

func (m *memoryStore) GetManifest(_ context.Context, id string) (clusterd.Manifest, error) {
	if len(m.manifests) == 0 {
		return clusterd.Manifest{}, &clusterd.Error{Kind: clusterd.KindNotFound, Err: clusterd.ErrManifestNotFound}
	}
	if id == Latest {
		return m.manifests[len(m.manifests)-1], nil
	}
	for _, man := range m.manifests {
		if man.ManifestID == id {
			return man, nil
		}
	}
	return clusterd.Manifest{}, &clusterd.Error{Kind: clusterd.KindNotFound, Err: clusterd.ErrManifestNotFound}
}

func (m *memoryStore) AddManifest(_ context.Context, id, data string) error {
	m.manifests = append(m.manifests, clusterd.Manifest{ManifestID: id, Data: data})
	return nil
}

func TestFromClusterd(t *testing.T) {
	store := &memoryStore{}
	defaults := Defaults("/snap")

	m, err := FromClusterd(context.Background(), store, defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, m)

	store.manifests = append(store.manifests, clusterd.Manifest{ManifestID: "a", Data: "charms:\n  nova:\n    channel: 2024.1/edge\n"})
	m, err = FromClusterd(context.Background(), store, defaults)
	require.NoError(t, err)
	assert.Equal(t, "2024.1/edge", m.Charms["nova"].Channel)
	assert.Equal(t, "2023.2/edge", m.Charms["glance"].Channel)
}

func TestAddManifestStepStoresOnceThenSkips(t *testing.T) {
	store := &memoryStore{}
	path := writeManifest(t, "charms:\n  nova:\n    channel: 2024.1/edge\n")

	first := NewAddManifestStep(store, path, nil)
	results, err := plan.Run(context.Background(), nil, []plan.Step{first}, plan.Options{})
	require.NoError(t, err)
	id, ok := plan.StepMessage[*AddManifestStep](results)
	require.True(t, ok)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	require.Len(t, store.manifests, 1)

	second := NewAddManifestStep(store, path, nil)
	res := second.IsSkip(context.Background(), nil)
	assert.Equal(t, plan.ResultSkipped, res.Kind)
	assert.Equal(t, id, res.Message)
}

func TestAddManifestStepEmptyManifest(t *testing.T) {
	store := &memoryStore{}
	step := NewAddManifestStep(store, "", nil)

	res := step.Run(context.Background(), nil)
	require.Equal(t, plan.ResultCompleted, res.Kind)
	parsed, err := Parse([]byte(store.manifests[0].Data))
	require.NoError(t, err)
	assert.Empty(t, parsed.Charms)
}

func TestAddManifestStepRejectsInvalidFile(t *testing.T) {
	path := writeManifest(t, "terraform:\n  nope:\n    source: /x\n")
	res := NewAddManifestStep(&memoryStore{}, path, nil).Run(context.Background(), nil)
	assert.True(t, res.IsFailed())
}

func TestManagedTFVars(t *testing.T) {
	assert.Equal(t, []string{"charm_microk8s_channel", "charm_microk8s_config", "charm_microk8s_revision"}, ManagedTFVars("microk8s-plan"))
	assert.Empty(t, ManagedTFVars("demo-setup"))
}
