package cluster

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// Service is the part of the clusterd API the cluster steps drive.
// *clusterd.ClusterService implements it.
type Service interface {
	Members(ctx context.Context) ([]clusterd.Member, error)
	ListTokens(ctx context.Context) ([]clusterd.Token, error)
	ListNodes(ctx context.Context, roles ...string) ([]clusterd.Node, error)
	Bootstrap(ctx context.Context, name, address string, roles []string) error
	AddNode(ctx context.Context, name string) (string, error)
	JoinNode(ctx context.Context, name, address, token string, roles []string) error
	UpdateNodeInfo(ctx context.Context, name string, roles []string, machineID int) error
	RemoveNode(ctx context.Context, name string) error
	GetJujuUser(ctx context.Context, name string) (clusterd.JujuUser, error)
	AddJujuUser(ctx context.Context, name, token string) error
}

func isMember(ctx context.Context, svc Service, name string) (bool, error) {
	members, err := svc.Members(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// InitStep bootstraps a new cluster with the local host as first member.
type InitStep struct {
	plan.BaseStep
	svc     Service
	roles   []string
	name    string
	address string
	logger  *slog.Logger
}

// NewInitStep resolves the local FQDN and default route address once, at
// construction.
func NewInitStep(svc Service, roles []string, logger *slog.Logger) (*InitStep, error) {
	ip, err := localIPFn()
	if err != nil {
		return nil, err
	}
	return &InitStep{
		BaseStep: plan.NewBaseStep("Bootstrap Cluster", "Bootstrapping Sunbeam cluster"),
		svc:      svc,
		roles:    roles,
		name:     FQDN(),
		address:  ClusterAddress(ip),
		logger:   orDefault(logger),
	}, nil
}

func (s *InitStep) IsSkip(ctx context.Context, _ plan.Status) plan.Result {
	member, err := isMember(ctx, s.svc, s.name)
	if err != nil {
		if errors.Is(err, clusterd.ErrNotInitialized) {
			s.logger.Debug("cluster not initialized", "error", err)
			return plan.Completed("")
		}
		return plan.Failed(err)
	}
	if member {
		return plan.Skipped(s.name + " is already a cluster member")
	}
	return plan.Completed("")
}

func (s *InitStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	err := s.svc.Bootstrap(ctx, s.name, s.address, s.roles)
	if errors.Is(err, clusterd.ErrAlreadyBootstrapped) {
		s.logger.Debug("cluster already bootstrapped")
		return plan.Completed("")
	}
	if err != nil {
		return plan.Failed(err)
	}
	return plan.Completed("")
}

// AddNodeStep issues a join token for a node. The token is the result
// message.
type AddNodeStep struct {
	plan.BaseStep
	svc    Service
	node   string
	logger *slog.Logger
}

func NewAddNodeStep(svc Service, node string, logger *slog.Logger) *AddNodeStep {
	return &AddNodeStep{
		BaseStep: plan.NewBaseStep("Add Node Cluster", "Generating token for new node to join cluster"),
		svc:      svc,
		node:     node,
		logger:   orDefault(logger),
	}
}

// IsSkip returns Skipped for an existing member, and Skipped carrying the
// pending token when one was already issued.
func (s *AddNodeStep) IsSkip(ctx context.Context, _ plan.Status) plan.Result {
	member, err := isMember(ctx, s.svc, s.node)
	if err != nil {
		return plan.Failed(err)
	}
	if member {
		return plan.Skipped("")
	}
	tokens, err := s.svc.ListTokens(ctx)
	if err != nil {
		return plan.Failed(err)
	}
	for _, t := range tokens {
		if t.Name == s.node {
			return plan.Skipped(t.Token)
		}
	}
	return plan.Completed("")
}

func (s *AddNodeStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	token, err := s.svc.AddNode(ctx, s.node)
	if err != nil {
		s.logger.Warn("token generation failed", "node", s.node, "error", err)
		return plan.Failed(err)
	}
	return plan.Completed(token)
}

// JoinNodeStep joins the local host to an existing cluster.
type JoinNodeStep struct {
	plan.BaseStep
	svc     Service
	token   string
	roles   []string
	name    string
	address string
	logger  *slog.Logger
}

func NewJoinNodeStep(svc Service, token string, roles []string, logger *slog.Logger) (*JoinNodeStep, error) {
	ip, err := localIPFn()
	if err != nil {
		return nil, err
	}
	return &JoinNodeStep{
		BaseStep: plan.NewBaseStep("Join node to Cluster", "Adding node to Sunbeam cluster"),
		svc:      svc,
		token:    token,
		roles:    roles,
		name:     FQDN(),
		address:  ClusterAddress(ip),
		logger:   orDefault(logger),
	}, nil
}

func (s *JoinNodeStep) IsSkip(ctx context.Context, _ plan.Status) plan.Result {
	member, err := isMember(ctx, s.svc, s.name)
	if err != nil {
		if errors.Is(err, clusterd.ErrNotInitialized) {
			return plan.Completed("")
		}
		return plan.Failed(err)
	}
	if member {
		return plan.Skipped(s.name + " is already a cluster member")
	}
	return plan.Completed("")
}

func (s *JoinNodeStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	if err := s.svc.JoinNode(ctx, s.name, s.address, s.token, s.roles); err != nil {
		s.logger.Warn("join failed", "node", s.name, "error", err)
		return plan.Failed(err)
	}
	return plan.Completed(s.token)
}

// NodeStatus is one row of the cluster node listing.
type NodeStatus struct {
	Name      string   `json:"name" yaml:"name"`
	Status    string   `json:"status" yaml:"status"`
	Roles     []string `json:"roles" yaml:"roles"`
	MachineID int      `json:"machineid" yaml:"machineid"`
}

// ListNodesStep merges member status with the recorded node roles. The
// payload is a []NodeStatus in member order.
type ListNodesStep struct {
	plan.BaseStep
	svc Service
}

func NewListNodesStep(svc Service) *ListNodesStep {
	return &ListNodesStep{
		BaseStep: plan.NewBaseStep("List nodes of Cluster", "Listing nodes in Sunbeam cluster"),
		svc:      svc,
	}
}

func (s *ListNodesStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	members, err := s.svc.Members(ctx)
	if err != nil {
		return plan.Failed(err)
	}
	nodes, err := s.svc.ListNodes(ctx)
	if err != nil {
		return plan.Failed(err)
	}
	byName := make(map[string]clusterd.Node, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n
	}
	out := make([]NodeStatus, 0, len(members))
	for _, m := range members {
		row := NodeStatus{Name: m.Name, Status: m.Status, Roles: []string{}, MachineID: -1}
		if n, ok := byName[m.Name]; ok {
			if n.Role != nil {
				row.Roles = n.Role
			}
			row.MachineID = n.MachineID
		}
		out = append(out, row)
	}
	return plan.Completed("").WithPayload(out)
}

type UpdateNodeStep struct {
	plan.BaseStep
	svc       Service
	node      string
	roles     []string
	machineID int
}

// NewUpdateNodeStep records roles and machine id for node. Nil roles keep
// the stored ones; machineID -1 leaves it unset.
func NewUpdateNodeStep(svc Service, node string, roles []string, machineID int) *UpdateNodeStep {
	return &UpdateNodeStep{
		BaseStep:  plan.NewBaseStep("Update node info", "Updating node info in cluster database"),
		svc:       svc,
		node:      node,
		roles:     roles,
		machineID: machineID,
	}
}

func (s *UpdateNodeStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	if err := s.svc.UpdateNodeInfo(ctx, s.node, s.roles, s.machineID); err != nil {
		return plan.Failed(err)
	}
	return plan.Completed("")
}

// RemoveNodeStep removes a node. A node or token that is already gone
// counts as removed.
type RemoveNodeStep struct {
	plan.BaseStep
	svc    Service
	node   string
	logger *slog.Logger
}

func NewRemoveNodeStep(svc Service, node string, logger *slog.Logger) *RemoveNodeStep {
	return &RemoveNodeStep{
		BaseStep: plan.NewBaseStep("Remove node from Cluster", "Removing node from Sunbeam cluster"),
		svc:      svc,
		node:     node,
		logger:   orDefault(logger),
	}
}

func (s *RemoveNodeStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	err := s.svc.RemoveNode(ctx, s.node)
	switch {
	case err == nil:
		return plan.Completed("")
	case errors.Is(err, clusterd.ErrTokenNotFound), errors.Is(err, clusterd.ErrNodeNotFound):
		s.logger.Warn("node already removed", "node", s.node, "error", err)
		return plan.Completed("")
	default:
		s.logger.Warn("remove node failed", "node", s.node, "error", err)
		return plan.Failed(err)
	}
}

// AddJujuUserStep records the Juju registration token for a node.
type AddJujuUserStep struct {
	plan.BaseStep
	svc      Service
	username string
	token    string
}

func NewAddJujuUserStep(svc Service, username, token string) *AddJujuUserStep {
	return &AddJujuUserStep{
		BaseStep: plan.NewBaseStep("Add Juju user to cluster DB", "Adding Juju user to cluster database"),
		svc:      svc,
		username: username,
		token:    token,
	}
}

func (s *AddJujuUserStep) IsSkip(ctx context.Context, _ plan.Status) plan.Result {
	_, err := s.svc.GetJujuUser(ctx, s.username)
	switch {
	case err == nil:
		return plan.Skipped("")
	case errors.Is(err, clusterd.ErrJujuUserNotFound):
		return plan.Completed("")
	default:
		return plan.Failed(err)
	}
}

func (s *AddJujuUserStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	if err := s.svc.AddJujuUser(ctx, s.username, s.token); err != nil {
		return plan.Failed(err)
	}
	return plan.Completed("")
}
