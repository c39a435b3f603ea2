// Package gate answers "may we send to this list now?" by composing a rule
// source, the window evaluator and a clock.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/haukened/nosend/internal/nosend/common/clock"
	"github.com/haukened/nosend/internal/nosend/common/log"
	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/services/evaluator"
)

// RuleSource supplies the active rules of a list in ascending id order.
// rulebook.Repository satisfies it.
type RuleSource interface {
	ListRulesForEvaluation(ctx context.Context, key domain.ListKey) ([]domain.Rule, error)
}

// Gate evaluates the active rules of a list at an instant.
type Gate struct {
	rules     RuleSource
	evaluator *evaluator.Evaluator
	clock     clock.Clock
	location  *time.Location
	logger    log.Logger
}

// GateOptions holds the dependencies of a Gate. Nil fields get defaults.
type GateOptions struct {
	Rules     RuleSource
	Evaluator *evaluator.Evaluator
	Clock     clock.Clock
	// Location is the zone rules are written in. Nil means UTC.
	Location *time.Location
	Logger   log.Logger
}

// NewGate returns a Gate built from opts.
func NewGate(opts GateOptions) *Gate {
	g := &Gate{
		rules:     opts.Rules,
		evaluator: opts.Evaluator,
		clock:     opts.Clock,
		location:  opts.Location,
		logger:    opts.Logger,
	}
	if g.logger == nil {
		g.logger = log.NewNoopLogger()
	}
	if g.evaluator == nil {
		g.evaluator = evaluator.New(g.logger)
	}
	if g.clock == nil {
		g.clock = clock.RealClock{}
	}
	if g.location == nil {
		g.location = time.UTC
	}
	return g
}

// Check decides whether a send to the list is permitted right now.
func (g *Gate) Check(ctx context.Context, key domain.ListKey) (domain.Decision, time.Time, error) {
	return g.CheckAt(ctx, key, g.clock.Now())
}

// CheckAt decides whether a send to the list is permitted at the given
// instant. The instant is converted to the gate's location before
// evaluation and returned in that location. Rule source failures are
// returned, never turned into a decision.
func (g *Gate) CheckAt(ctx context.Context, key domain.ListKey, at time.Time) (domain.Decision, time.Time, error) {
	if at.IsZero() {
		return domain.Decision{}, time.Time{}, evaluator.ErrMissingTimestamp
	}
	local := at.In(g.location)

	rules, err := g.rules.ListRulesForEvaluation(ctx, key)
	if err != nil {
		g.logger.Error(map[string]any{"list": key.String(), "error": err.Error()}, "failed to load no-send rules")
		return domain.Decision{}, local, fmt.Errorf("load rules for %s: %w", key, err)
	}
	d, err := g.evaluator.Evaluate(rules, local)
	if err != nil {
		return domain.Decision{}, local, err
	}

	fields := map[string]any{
		"list":    key.String(),
		"at":      local.Format(time.RFC3339),
		"rules":   len(rules),
		"allowed": d.Allowed,
	}
	if !d.Allowed {
		fields["rule_id"] = d.RuleID
		fields["reason"] = d.Reason
	}
	g.logger.Debug(fields, "no-send decision")
	return d, local, nil
}
