package terraform

import (
	"context"
	"slices"

	"github.com/Bibi40k/sunbeam-bootstrap/internal/manifest"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/plan"
	"github.com/Bibi40k/sunbeam-bootstrap/internal/questions"
)

// InitStep initializes a plan directory from the provider mirror.
type InitStep struct {
	plan.BaseStep
	helper *Helper
}

func NewInitStep(h *Helper) *InitStep {
	return &InitStep{
		BaseStep: plan.NewBaseStep("Initialize Terraform", "Initializing Terraform from provider mirror"),
		helper:   h,
	}
}

func (s *InitStep) Key() string { return plan.KeyFor[*InitStep]() + "/" + s.helper.Plan }

func (s *InitStep) Run(ctx context.Context, status plan.Status) plan.Result {
	status.Update("terraform init " + s.helper.Plan)
	if err := s.helper.Init(ctx); err != nil {
		return plan.Failed(err)
	}
	return plan.Completed("")
}

// ApplyStep applies a plan with variables assembled from three layers:
// the values last applied (stored in clusterd under ConfigKey), the
// manifest, and per-step overrides. Manifest-managed variables the manifest
// no longer sets are dropped so their Terraform defaults apply again.
type ApplyStep struct {
	plan.BaseStep
	helper    *Helper
	store     questions.ConfigStore
	configKey string
	manifest  manifest.Manifest
	overrides map[string]any
}

// NewApplyStep builds an apply step. configKey may be empty, in which case
// nothing is read from or written to clusterd.
func NewApplyStep(h *Helper, store questions.ConfigStore, configKey string, m manifest.Manifest, overrides map[string]any) *ApplyStep {
	return &ApplyStep{
		BaseStep:  plan.NewBaseStep("Apply "+h.Plan, "Applying terraform plan "+h.Plan),
		helper:    h,
		store:     store,
		configKey: configKey,
		manifest:  m,
		overrides: overrides,
	}
}

func (s *ApplyStep) Key() string { return plan.KeyFor[*ApplyStep]() + "/" + s.helper.Plan }

// TFVars returns the variables Run would apply.
func (s *ApplyStep) TFVars(ctx context.Context) (map[string]any, error) {
	vars := map[string]any{}
	if s.configKey != "" {
		stored, err := questions.LoadAnswers(ctx, s.store, s.configKey)
		if err != nil {
			return nil, err
		}
		vars = stored
	}
	fromManifest := s.manifest.TFVars(s.helper.Plan)
	for k := range vars {
		if _, set := fromManifest[k]; !set && slices.Contains(manifest.ManagedTFVars(s.helper.Plan), k) {
			delete(vars, k)
		}
	}
	for k, v := range fromManifest {
		vars[k] = v
	}
	for k, v := range s.overrides {
		vars[k] = v
	}
	return vars, nil
}

func (s *ApplyStep) Run(ctx context.Context, status plan.Status) plan.Result {
	vars, err := s.TFVars(ctx)
	if err != nil {
		return plan.Failed(err)
	}
	if s.configKey != "" {
		if err := questions.WriteAnswers(ctx, s.store, s.configKey, vars); err != nil {
			return plan.Failed(err)
		}
	}
	if err := s.helper.WriteTFVars(vars); err != nil {
		return plan.Failed(err)
	}
	status.Update("terraform apply " + s.helper.Plan)
	if err := s.helper.Apply(ctx); err != nil {
		return plan.Failed(err)
	}
	return plan.Completed("")
}

// DestroyStep tears down everything a plan created.
type DestroyStep struct {
	plan.BaseStep
	helper *Helper
}

func NewDestroyStep(h *Helper) *DestroyStep {
	return &DestroyStep{
		BaseStep: plan.NewBaseStep("Destroy "+h.Plan, "Destroying terraform plan "+h.Plan),
		helper:   h,
	}
}

func (s *DestroyStep) Key() string { return plan.KeyFor[*DestroyStep]() + "/" + s.helper.Plan }

func (s *DestroyStep) Run(ctx context.Context, status plan.Status) plan.Result {
	status.Update("terraform destroy " + s.helper.Plan)
	if err := s.helper.Destroy(ctx); err != nil {
		return plan.Failed(err)
	}
	return plan.Completed("")
}
