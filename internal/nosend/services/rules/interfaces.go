package rules

import (
	"context"

	"github.com/haukened/nosend/internal/nosend/domain"
)

// RuleRepository is the persistence the service writes through.
// rulebook.Repository satisfies it.
type RuleRepository interface {
	Create(ctx context.Context, r domain.Rule) (domain.Rule, error)
	// CreateAll stores every rule or none of them.
	CreateAll(ctx context.Context, rules []domain.Rule) ([]domain.Rule, error)
	Get(ctx context.Context, key domain.ListKey, id uint64) (domain.Rule, error)
	List(ctx context.Context, key domain.ListKey, includeDeleted bool) ([]domain.Rule, error)
	Update(ctx context.Context, r domain.Rule) error
}
