package clusterd

import (
	"context"
	"errors"
	"fmt"
)

// ClusterService groups every clusterd operation plus the multi-call
// workflows built from them.
type ClusterService struct {
	MicroClusterService
	ExtendedService
}

func newClusterService(c *Client) *ClusterService {
	base := service{client: c}
	return &ClusterService{
		MicroClusterService: MicroClusterService{service: base},
		ExtendedService:     ExtendedService{service: base},
	}
}

// Bootstrap initialises a new cluster with this node as its first member.
func (s *ClusterService) Bootstrap(ctx context.Context, name, address string, roles []string) error {
	if err := s.BootstrapCluster(ctx, name, address); err != nil {
		return err
	}
	if err := s.AddNodeInfo(ctx, name, roles); err != nil {
		return fmt.Errorf("record node %s: %w", name, err)
	}
	return nil
}

// AddNode issues the join token a new node will present.
func (s *ClusterService) AddNode(ctx context.Context, name string) (string, error) {
	return s.GenerateToken(ctx, name)
}

func (s *ClusterService) JoinNode(ctx context.Context, name, address, token string, roles []string) error {
	if err := s.JoinCluster(ctx, name, address, token); err != nil {
		return err
	}
	if err := s.AddNodeInfo(ctx, name, roles); err != nil {
		return fmt.Errorf("record node %s: %w", name, err)
	}
	return nil
}

// RemoveNode removes a member and its node record, or deletes its pending
// token when the node never joined.
func (s *ClusterService) RemoveNode(ctx context.Context, name string) error {
	member, err := s.IsMember(ctx, name)
	if err != nil {
		return err
	}
	if !member {
		return s.DeleteToken(ctx, name)
	}

	if err := s.RemoveJujuUser(ctx, name); err != nil && !errors.Is(err, ErrJujuUserNotFound) {
		return fmt.Errorf("remove juju user %s: %w", name, err)
	}
	if err := s.RemoveNodeInfo(ctx, name); err != nil && !errors.Is(err, ErrNodeNotFound) {
		return fmt.Errorf("remove node record %s: %w", name, err)
	}
	return s.RemoveMember(ctx, name)
}

func (s *ClusterService) IsMember(ctx context.Context, name string) (bool, error) {
	members, err := s.Members(ctx)
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

// HasToken reports whether a pending join token exists for name.
func (s *ClusterService) HasToken(ctx context.Context, name string) (Token, bool, error) {
	tokens, err := s.ListTokens(ctx)
	if err != nil {
		return Token{}, false, err
	}
	for _, t := range tokens {
		if t.Name == name {
			return t, true, nil
		}
	}
	return Token{}, false, nil
}
