// Package rules manages the lifecycle of no-send rules: every create and
// update is routed through the validator before it reaches the repository.
package rules

import (
	"context"
	"fmt"

	"github.com/haukened/nosend/internal/nosend/common/clock"
	"github.com/haukened/nosend/internal/nosend/common/log"
	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/services/validator"
)

// Service validates and persists rule changes for tenant lists.
type Service struct {
	repo      RuleRepository
	validator *validator.RuleValidator
	clock     clock.Clock
	logger    log.Logger
}

// ServiceOptions holds the dependencies of a Service. Nil fields get defaults.
type ServiceOptions struct {
	Repo      RuleRepository
	Validator *validator.RuleValidator
	Clock     clock.Clock
	Logger    log.Logger
}

// NewService returns a Service built from opts.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		repo:      opts.Repo,
		validator: opts.Validator,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if s.validator == nil {
		s.validator = validator.New(validator.DefaultMaxRangeDays)
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}
	return s
}

// Create validates spec and persists the rule it describes.
func (s *Service) Create(ctx context.Context, spec validator.RuleSpec) (domain.Rule, error) {
	r, err := s.validator.Build(spec)
	if err != nil {
		return domain.Rule{}, err
	}
	now := s.clock.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	created, err := s.repo.Create(ctx, r)
	if err != nil {
		return domain.Rule{}, err
	}
	s.logger.Info(map[string]any{
		"list":         created.Key().String(),
		"rule_id":      created.ID,
		"setting_type": created.Kind().String(),
	}, "no-send rule created")
	return created, nil
}

// Get returns a live rule. Soft-deleted and foreign rules are domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, key domain.ListKey, id uint64) (domain.Rule, error) {
	r, err := s.repo.Get(ctx, key, id)
	if err != nil {
		return domain.Rule{}, err
	}
	if r.IsDeleted() {
		return domain.Rule{}, domain.ErrNotFound
	}
	return r, nil
}

// List returns the rules of a list in creation order.
func (s *Service) List(ctx context.Context, key domain.ListKey, includeDeleted bool) ([]domain.Rule, error) {
	return s.repo.List(ctx, key, includeDeleted)
}

// Update applies the mutable fields of u to a live rule. Kind and window
// never change after creation.
func (s *Service) Update(ctx context.Context, key domain.ListKey, id uint64, u validator.RuleUpdate) (domain.Rule, error) {
	u, err := s.validator.ValidateUpdate(u)
	if err != nil {
		return domain.Rule{}, err
	}
	r, err := s.Get(ctx, key, id)
	if err != nil {
		return domain.Rule{}, err
	}
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Enabled != nil {
		r.Enabled = *u.Enabled
	}
	r.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return domain.Rule{}, err
	}
	s.logger.Info(map[string]any{
		"list":       key.String(),
		"rule_id":    id,
		"is_enabled": r.Enabled,
	}, "no-send rule updated")
	return r, nil
}

// SoftDelete marks a live rule deleted. It stays stored but never evaluates again.
func (s *Service) SoftDelete(ctx context.Context, key domain.ListKey, id uint64) error {
	r, err := s.Get(ctx, key, id)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	r.SoftDelete(now)
	r.UpdatedAt = now
	if err := s.repo.Update(ctx, r); err != nil {
		return err
	}
	s.logger.Info(map[string]any{"list": key.String(), "rule_id": id}, "no-send rule deleted")
	return nil
}

// ImportIfEmpty creates specs in order when the list has never held a rule,
// deleted ones included. Every spec is validated before anything is stored and
// the rules are created in one atomic write, so a failed import leaves the list
// empty and the next import retries it. It returns how many rules were created.
func (s *Service) ImportIfEmpty(ctx context.Context, key domain.ListKey, specs []validator.RuleSpec) (int, error) {
	existing, err := s.repo.List(ctx, key, true)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		s.logger.Info(map[string]any{"list": key.String(), "existing": len(existing)}, "rule import skipped, list already has rules")
		return 0, nil
	}
	now := s.clock.Now().UTC()
	rules := make([]domain.Rule, 0, len(specs))
	for i, spec := range specs {
		if spec.TenantID != key.TenantID || spec.ListID != key.ListID {
			return 0, fmt.Errorf("import rule %d: belongs to list %d/%d, not %s", i, spec.TenantID, spec.ListID, key)
		}
		r, err := s.validator.Build(spec)
		if err != nil {
			return 0, fmt.Errorf("import rule %d: %w", i, err)
		}
		r.CreatedAt, r.UpdatedAt = now, now
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		return 0, nil
	}
	created, err := s.repo.CreateAll(ctx, rules)
	if err != nil {
		return 0, fmt.Errorf("import rules into %s: %w", key, err)
	}
	s.logger.Info(map[string]any{"list": key.String(), "rules": len(created)}, "no-send rules imported")
	return len(created), nil
}
