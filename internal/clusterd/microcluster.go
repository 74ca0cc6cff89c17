package clusterd

import (
	"context"
	"fmt"
	"net/url"
)

// MicroClusterService wraps the membership and token endpoints.
type MicroClusterService struct {
	service
}

type controlRequest struct {
	Bootstrap bool   `json:"bootstrap,omitempty"`
	JoinToken string `json:"join_token,omitempty"`
	Address   string `json:"address"`
	Name      string `json:"name"`
}

func (s MicroClusterService) BootstrapCluster(ctx context.Context, name, address string) error {
	_, err := s.post(ctx, "/cluster/control", controlRequest{Bootstrap: true, Address: address, Name: name})
	return err
}

func (s MicroClusterService) JoinCluster(ctx context.Context, name, address, token string) error {
	_, err := s.post(ctx, "/cluster/control", controlRequest{JoinToken: token, Address: address, Name: name})
	return err
}

func (s MicroClusterService) Members(ctx context.Context) ([]Member, error) {
	data, err := s.get(ctx, "/cluster/1.0/cluster", nil)
	if err != nil {
		return nil, err
	}
	var members []Member
	if err := metadata(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (s MicroClusterService) RemoveMember(ctx context.Context, name string) error {
	_, err := s.delete(ctx, "/cluster/1.0/cluster/"+url.PathEscape(name))
	return err
}

// GenerateToken creates a join token for a node that is about to join.
func (s MicroClusterService) GenerateToken(ctx context.Context, name string) (string, error) {
	data, err := s.post(ctx, "/cluster/1.0/tokens", map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	var token string
	if err := metadata(data, &token); err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("clusterd returned an empty token for %s", name)
	}
	return token, nil
}

func (s MicroClusterService) ListTokens(ctx context.Context) ([]Token, error) {
	data, err := s.get(ctx, "/cluster/1.0/tokens", nil)
	if err != nil {
		return nil, err
	}
	var tokens []Token
	if err := metadata(data, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s MicroClusterService) DeleteToken(ctx context.Context, name string) error {
	_, err := s.delete(ctx, "/cluster/internal/tokens/"+url.PathEscape(name))
	return err
}
