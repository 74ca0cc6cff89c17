package deployments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "deployments.yaml"))
	require.NoError(t, err)
	assert.Empty(t, r.Deployments)
	_, err = r.Current()
	assert.ErrorIs(t, err, ErrNoActive)
}

func TestLoadEmptyAndNullDocuments(t *testing.T) {
	for _, content := range []string{"", "{}\n", "null\n"} {
		path := filepath.Join(t.TempDir(), "deployments.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		r, err := Load(path)
		require.NoError(t, err, content)
		assert.Empty(t, r.Deployments, content)
	}
}

func TestLoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- just\n- a list\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted")
}

func TestAddSwitchRemoveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "share", "deployments.yaml")
	r, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, r.Add(Local()))
	require.NoError(t, r.Add(Deployment{Name: "lab", URL: "https://10.0.0.10:7000", Type: TypeRemote}))
	assert.Equal(t, "lab", r.Active)
	assert.ErrorIs(t, r.Add(Local()), ErrExists)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, r.Deployments, reloaded.Deployments)
	current, err := reloaded.Current()
	require.NoError(t, err)
	assert.Equal(t, "https://10.0.0.10:7000", current.URL)

	require.NoError(t, reloaded.Switch("local"))
	assert.ErrorIs(t, reloaded.Switch("nope"), ErrNotFound)

	require.NoError(t, reloaded.Remove("local"))
	assert.Equal(t, "lab", reloaded.Active)
	assert.ErrorIs(t, reloaded.Remove("local"), ErrNotFound)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lab", again.Active)
	assert.Len(t, again.Deployments, 1)
}

func TestUpdate(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "deployments.yaml"))
	require.NoError(t, err)
	require.NoError(t, r.Add(Deployment{Name: "lab", URL: "https://10.0.0.10:7000", Type: TypeRemote}))

	require.NoError(t, r.Update(Deployment{Name: "lab", URL: "https://10.0.0.11:7000", Type: TypeRemote, InsecureSkipVerify: true}))
	d, err := r.Get("lab")
	require.NoError(t, err)
	assert.True(t, d.InsecureSkipVerify)
	assert.ErrorIs(t, r.Update(Deployment{Name: "ghost", Type: TypeLocal}), ErrNotFound)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Deployment{Type: TypeLocal}.Validate(), ErrInvalidEntry)
	assert.ErrorIs(t, Deployment{Name: "x", Type: "maas"}.Validate(), ErrInvalidEntry)
	assert.ErrorIs(t, Deployment{Name: "x", Type: TypeRemote, URL: "10.0.0.1"}.Validate(), ErrInvalidEntry)
	assert.NoError(t, Local().Validate())
}

func TestClient(t *testing.T) {
	c, err := Client(Local(), ClientOptions{SocketPath: "/var/snap/openstack/common/state/control.socket"})
	require.NoError(t, err)
	assert.Contains(t, c.Endpoint(), "http+unix://")

	_, err = Client(Local(), ClientOptions{})
	assert.Error(t, err)

	c, err = Client(Deployment{Name: "lab", URL: "https://10.0.0.10:7000", Type: TypeRemote, InsecureSkipVerify: true}, ClientOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://10.0.0.10:7000", c.Endpoint())
}
