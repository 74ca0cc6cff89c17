package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/clusterd"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
)

// Store is the clusterd manifest API.
type Store interface {
	GetManifest(ctx context.Context, id string) (clusterd.Manifest, error)
	AddManifest(ctx context.Context, id, data string) error
}

// Latest is the manifest id clusterd resolves to the newest entry.
const Latest = "latest"

// FromClusterd returns the latest stored manifest overlaid on defaults.
// When nothing is stored the defaults are returned unchanged.
func FromClusterd(ctx context.Context, store Store, defaults Manifest) (Manifest, error) {
	latest, err := store.GetManifest(ctx, Latest)
	if errors.Is(err, clusterd.ErrManifestNotFound) {
		slog.Debug("no manifest stored, using defaults")
		return defaults, nil
	}
	if err != nil {
		return Manifest{}, err
	}
	stored, err := Parse([]byte(latest.Data))
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", latest.ManifestID, err)
	}
	return Overlay(defaults, stored)
}

// AddManifestStep stores a manifest file in clusterd under a new id. The id
// is the result message.
type AddManifestStep struct {
	plan.BaseStep
	store  Store
	path   string
	logger *slog.Logger

	data []byte
}

// NewAddManifestStep stores the file at path, or the empty manifest when
// path is "".
func NewAddManifestStep(store Store, path string, logger *slog.Logger) *AddManifestStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AddManifestStep{
		BaseStep: plan.NewBaseStep("Write Manifest to database", "Writing Manifest to database"),
		store:    store,
		path:     path,
		logger:   logger,
	}
}

func (s *AddManifestStep) load() ([]byte, error) {
	if s.data != nil {
		return s.data, nil
	}
	raw := []byte(Empty)
	if s.path != "" {
		var err error
		raw, err = os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", s.path, err)
		}
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	// Round-trip through yaml so equal manifests compare equal.
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	s.data, err = yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return s.data, nil
}

// IsSkip returns Skipped when the latest stored manifest has the same
// content.
func (s *AddManifestStep) IsSkip(ctx context.Context, _ plan.Status) plan.Result {
	data, err := s.load()
	if err != nil {
		return plan.Failed(err)
	}
	latest, err := s.store.GetManifest(ctx, Latest)
	switch {
	case errors.Is(err, clusterd.ErrManifestNotFound):
		return plan.Completed("")
	case err != nil:
		return plan.Failed(err)
	}
	if bytes.Equal(bytes.TrimSpace([]byte(latest.Data)), bytes.TrimSpace(data)) {
		return plan.Skipped(latest.ManifestID)
	}
	return plan.Completed("")
}

func (s *AddManifestStep) Run(ctx context.Context, _ plan.Status) plan.Result {
	data, err := s.load()
	if err != nil {
		return plan.Failed(err)
	}
	id := uuid.NewString()
	if err := s.store.AddManifest(ctx, id, string(data)); err != nil {
		s.logger.Warn("store manifest failed", "error", err)
		return plan.Failed(err)
	}
	s.logger.Debug("manifest stored", "id", id)
	return plan.Completed(id)
}
