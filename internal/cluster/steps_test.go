package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// fakeCluster is an in-memory clusterd.
type fakeCluster struct {
	initialized bool
	members     []clusterd.Member
	nodes       []clusterd.Node
	tokens      []clusterd.Token
	jujuUsers   map[string]string
	config      map[string]string
	bootstraps  int
	err         error
}

func classified(kind clusterd.Kind, sentinel error) error {
	return &clusterd.Error{Kind: kind, Err: sentinel}
}

func (f *fakeCluster) Members(context.Context) ([]clusterd.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.initialized {
		return nil, classified(clusterd.KindInvalidOperation, clusterd.ErrNotInitialized)
	}
	return f.members, nil
}

func (f *fakeCluster) ListTokens(context.Context) ([]clusterd.Token, error) { return f.tokens, f.err }

func (f *fakeCluster) ListNodes(context.Context, ...string) ([]clusterd.Node, error) {
	return f.nodes, f.err
}

func (f *fakeCluster) Bootstrap(_ context.Context, name, address string, roles []string) error {
	if f.initialized {
		return classified(clusterd.KindAlreadyExists, clusterd.ErrAlreadyBootstrapped)
	}
	f.bootstraps++
	f.initialized = true
	f.members = append(f.members, clusterd.Member{Name: name, Address: address, Status: "ONLINE"})
	f.nodes = append(f.nodes, clusterd.Node{Name: name, Role: roles, MachineID: -1})
	return nil
}

func (f *fakeCluster) AddNode(_ context.Context, name string) (string, error) {
	for _, t := range f.tokens {
		if t.Name == name {
			return "", classified(clusterd.KindAlreadyExists, clusterd.ErrTokenAlreadyGenerated)
		}
	}
	token := "token-" + name
	f.tokens = append(f.tokens, clusterd.Token{Name: name, Token: token})
	return token, nil
}

func (f *fakeCluster) JoinNode(_ context.Context, name, address, token string, roles []string) error {
	for i, t := range f.tokens {
		if t.Token == token {
			f.tokens = append(f.tokens[:i], f.tokens[i+1:]...)
			f.members = append(f.members, clusterd.Member{Name: name, Address: address, Status: "ONLINE"})
			f.nodes = append(f.nodes, clusterd.Node{Name: name, Role: roles, MachineID: -1})
			return nil
		}
	}
	return classified(clusterd.KindInvalidOperation, clusterd.ErrNodeJoin)
}

func (f *fakeCluster) UpdateNodeInfo(_ context.Context, name string, roles []string, machineID int) error {
	for i := range f.nodes {
		if f.nodes[i].Name == name {
			if roles != nil {
				f.nodes[i].Role = roles
			}
			f.nodes[i].MachineID = machineID
			return nil
		}
	}
	return classified(clusterd.KindNotFound, clusterd.ErrNodeNotFound)
}

func (f *fakeCluster) RemoveNode(_ context.Context, name string) error {
	if f.err != nil {
		return f.err
	}
	for i, m := range f.members {
		if m.Name == name {
			f.members = append(f.members[:i], f.members[i+1:]...)
			return nil
		}
	}
	return classified(clusterd.KindNotFound, clusterd.ErrTokenNotFound)
}

func (f *fakeCluster) GetJujuUser(_ context.Context, name string) (clusterd.JujuUser, error) {
	if token, ok := f.jujuUsers[name]; ok {
		return clusterd.JujuUser{Username: name, Token: token}, nil
	}
	return clusterd.JujuUser{}, classified(clusterd.KindNotFound, clusterd.ErrJujuUserNotFound)
}

func (f *fakeCluster) AddJujuUser(_ context.Context, name, token string) error {
	if f.jujuUsers == nil {
		f.jujuUsers = map[string]string{}
	}
	f.jujuUsers[name] = token
	return nil
}

func (f *fakeCluster) GetConfig(_ context.Context, key string) (string, error) {
	v, ok := f.config[key]
	if !ok {
		return "", classified(clusterd.KindNotFound, clusterd.ErrConfigItemNotFound)
	}
	return v, nil
}

func (f *fakeCluster) UpdateConfig(_ context.Context, key, value string) error {
	if f.config == nil {
		f.config = map[string]string{}
	}
	f.config[key] = value
	return nil
}

func stubHost(t *testing.T) {
	t.Helper()
	prevHost, prevIP := hostnameFn, localIPFn
	hostnameFn = func() (string, error) { return "node-1.example.com", nil }
	localIPFn = func() (string, error) { return "10.0.0.10", nil }
	t.Cleanup(func() {
		hostnameFn, localIPFn = prevHost, prevIP
	})
}

func TestInitStepIsIdempotent(t *testing.T) {
	stubHost(t)
	fake := &fakeCluster{}
	ctx := context.Background()

	first, err := NewInitStep(fake, []string{"control"}, nil)
	require.NoError(t, err)
	results, err := plan.Run(ctx, nil, []plan.Step{first}, plan.Options{})
	require.NoError(t, err)
	assert.Equal(t, plan.ResultCompleted, results[plan.KeyOf(first)].Kind)
	assert.Equal(t, 1, fake.bootstraps)
	assert.Equal(t, "10.0.0.10:7000", fake.members[0].Address)

	second, err := NewInitStep(fake, []string{"control"}, nil)
	require.NoError(t, err)
	results, err = plan.Run(ctx, nil, []plan.Step{second}, plan.Options{})
	require.NoError(t, err)
	assert.Equal(t, plan.ResultSkipped, results[plan.KeyOf(second)].Kind)
	assert.Equal(t, 1, fake.bootstraps)
}

func TestInitStepAlreadyBootstrappedCompletes(t *testing.T) {
	stubHost(t)
	fake := &fakeCluster{initialized: true}
	step, err := NewInitStep(fake, nil, nil)
	require.NoError(t, err)

	res := step.Run(context.Background(), nil)
	assert.Equal(t, plan.ResultCompleted, res.Kind)
}

func TestInitStepUnavailableFails(t *testing.T) {
	stubHost(t)
	fake := &fakeCluster{err: classified(clusterd.KindTransportUnavailable, clusterd.ErrServiceUnavailable)}
	step, err := NewInitStep(fake, nil, nil)
	require.NoError(t, err)

	res := step.IsSkip(context.Background(), nil)
	assert.True(t, res.IsFailed())
}

func TestAddNodeStepReusesPendingToken(t *testing.T) {
	fake := &fakeCluster{initialized: true, tokens: []clusterd.Token{{Name: "node-2", Token: "existing"}}}
	step := NewAddNodeStep(fake, "node-2", nil)

	res := step.IsSkip(context.Background(), nil)
	assert.Equal(t, plan.ResultSkipped, res.Kind)
	assert.Equal(t, "existing", res.Message)
}

func TestAddNodeStepIssuesToken(t *testing.T) {
	fake := &fakeCluster{initialized: true}
	step := NewAddNodeStep(fake, "node-3", nil)

	results, err := plan.Run(context.Background(), nil, []plan.Step{step}, plan.Options{})
	require.NoError(t, err)
	token, ok := plan.StepMessage[*AddNodeStep](results)
	require.True(t, ok)
	assert.Equal(t, "token-node-3", token)
}

func TestJoinNodeStep(t *testing.T) {
	stubHost(t)
	fake := &fakeCluster{initialized: true, tokens: []clusterd.Token{{Name: "node-1.example.com", Token: "t1"}}}
	step, err := NewJoinNodeStep(fake, "t1", []string{"compute"}, nil)
	require.NoError(t, err)

	results, err := plan.Run(context.Background(), nil, []plan.Step{step}, plan.Options{})
	require.NoError(t, err)
	token, ok := plan.StepMessage[*JoinNodeStep](results)
	require.True(t, ok)
	assert.Equal(t, "t1", token)
	assert.Equal(t, plan.ResultSkipped, step.IsSkip(context.Background(), nil).Kind)

	bad, err := NewJoinNodeStep(&fakeCluster{initialized: true}, "nope", nil, nil)
	require.NoError(t, err)
	assert.True(t, bad.Run(context.Background(), nil).IsFailed())
}

func TestListNodesStepMergesRoles(t *testing.T) {
	fake := &fakeCluster{
		initialized: true,
		members:     []clusterd.Member{{Name: "a", Status: "ONLINE"}, {Name: "b", Status: "PENDING"}},
		nodes:       []clusterd.Node{{Name: "a", Role: []string{"control"}, MachineID: 3}},
	}
	res := NewListNodesStep(fake).Run(context.Background(), nil)
	require.Equal(t, plan.ResultCompleted, res.Kind)
	assert.Equal(t, []NodeStatus{
		{Name: "a", Status: "ONLINE", Roles: []string{"control"}, MachineID: 3},
		{Name: "b", Status: "PENDING", Roles: []string{}, MachineID: -1},
	}, res.Payload)
}

func TestUpdateNodeStep(t *testing.T) {
	fake := &fakeCluster{initialized: true, nodes: []clusterd.Node{{Name: "a", Role: []string{"control"}}}}
	res := NewUpdateNodeStep(fake, "a", nil, 7).Run(context.Background(), nil)
	require.Equal(t, plan.ResultCompleted, res.Kind)
	assert.Equal(t, 7, fake.nodes[0].MachineID)
	assert.Equal(t, []string{"control"}, fake.nodes[0].Role)

	res = NewUpdateNodeStep(fake, "missing", nil, 1).Run(context.Background(), nil)
	assert.True(t, res.IsFailed())
}

func TestRemoveNodeStepSoftErrors(t *testing.T) {
	fake := &fakeCluster{initialized: true}
	res := NewRemoveNodeStep(fake, "ghost", nil).Run(context.Background(), nil)
	assert.Equal(t, plan.ResultCompleted, res.Kind)

	fake.err = classified(clusterd.KindInvalidOperation, clusterd.ErrLastNodeRemoval)
	res = NewRemoveNodeStep(fake, "node-1", nil).Run(context.Background(), nil)
	require.True(t, res.IsFailed())
	assert.Contains(t, res.Message, "last cluster member")
}

func TestAddJujuUserStep(t *testing.T) {
	fake := &fakeCluster{initialized: true}
	step := NewAddJujuUserStep(fake, "node-2", "reg-token")

	_, err := plan.Run(context.Background(), nil, []plan.Step{step}, plan.Options{})
	require.NoError(t, err)
	assert.Equal(t, "reg-token", fake.jujuUsers["node-2"])
	assert.Equal(t, plan.ResultSkipped, step.IsSkip(context.Background(), nil).Kind)
}

type autoConsole struct{ asked int }

func (c *autoConsole) Ask(_, def string) (string, error) {
	c.asked++
	return def, nil
}

func (c *autoConsole) Password(_, def string) (string, error) { return def, nil }

func (c *autoConsole) Confirm(_ string, def bool) (bool, error) {
	c.asked++
	return def, nil
}

func (c *autoConsole) Select(_ string, _ []string, def string) (string, error) { return def, nil }

func TestPromptForProxyUsesEnvironmentDefaults(t *testing.T) {
	fake := &fakeCluster{initialized: true}
	defaults := func() map[string]string {
		return map[string]string{"HTTP_PROXY": "http://squid:3128", "HTTPS_PROXY": "http://squid:3128", "NO_PROXY": "10.0.0.0/8"}
	}
	step := NewPromptForProxyStep(fake, nil, false, defaults, nil)
	console := &autoConsole{}

	results, err := plan.Run(context.Background(), nil, []plan.Step{step}, plan.Options{Console: console})
	require.NoError(t, err)
	assert.Equal(t, 4, console.asked)

	vars, ok := plan.StepPayload[*PromptForProxyStep, map[string]any](results)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"proxy_required": true,
		"http_proxy":     "http://squid:3128",
		"https_proxy":    "http://squid:3128",
		"no_proxy":       "10.0.0.0/8",
	}, vars["proxy"])
	assert.JSONEq(t,
		`{"proxy":{"proxy_required":true,"http_proxy":"http://squid:3128","https_proxy":"http://squid:3128","no_proxy":"10.0.0.0/8"}}`,
		fake.config[ProxyConfigKey])

	settings := ProxySettings(context.Background(), fake, nil)
	assert.Equal(t, "http://squid:3128", settings["HTTP_PROXY"])
	assert.Equal(t, ".svc,.svc.cluster.local,10.0.0.0/8,10.1.0.0/16,10.152.183.0/24,127.0.0.1,localhost", settings["NO_PROXY"])
}

func TestPromptForProxyPreseedNoProxy(t *testing.T) {
	fake := &fakeCluster{initialized: true}
	preseed := map[string]any{"proxy": map[string]any{"proxy_required": false}}
	step := NewPromptForProxyStep(fake, preseed, false, nil, nil)
	console := &autoConsole{}

	require.NoError(t, step.Prompt(context.Background(), console))
	assert.Zero(t, console.asked)
	assert.Empty(t, ProxySettings(context.Background(), fake, nil))
}

func TestProxySettingsFallsBackToDefaults(t *testing.T) {
	defaults := func() map[string]string { return map[string]string{"HTTP_PROXY": "http://p:1"} }
	got := ProxySettings(context.Background(), &fakeCluster{}, defaults)
	assert.Equal(t, map[string]string{"HTTP_PROXY": "http://p:1"}, got)

	got = ProxySettings(context.Background(), nil, defaults)
	assert.Equal(t, "http://p:1", got["HTTP_PROXY"])
}

func TestEnvironmentProxySettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "environment")
	content := "PATH=\"/usr/local/sbin:/usr/bin\"\nhttp_proxy=\"http://squid:3128\"\nHTTPS_PROXY=http://squid:3129\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := EnvironmentProxySettings(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HTTP_PROXY": "http://squid:3128", "HTTPS_PROXY": "http://squid:3129"}, got)

	got, err = EnvironmentProxySettings(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFQDN(t *testing.T) {
	prevHost, prevIP, prevLookup := hostnameFn, localIPFn, lookupAddrFn
	t.Cleanup(func() { hostnameFn, localIPFn, lookupAddrFn = prevHost, prevIP, prevLookup })

	hostnameFn = func() (string, error) { return "node-1", nil }
	localIPFn = func() (string, error) { return "10.0.0.10", nil }
	lookupAddrFn = func(string) ([]string, error) { return []string{"node-1.maas."}, nil }
	assert.Equal(t, "node-1.maas", FQDN())

	lookupAddrFn = func(string) ([]string, error) { return nil, errors.New("no PTR") }
	assert.Equal(t, "node-1", FQDN())

	hostnameFn = func() (string, error) { return "node-1.lab", nil }
	assert.Equal(t, "node-1.lab", FQDN())
}
