// Package evaluator decides whether an outbound send is permitted at an
// instant, given the no-send rules of the target list.
package evaluator

import (
	"errors"
	"time"

	"github.com/haukened/nosend/internal/nosend/common/log"
	"github.com/haukened/nosend/internal/nosend/domain"
)

// ErrMissingTimestamp is returned when Evaluate receives the zero time.
// It signals a caller bug; the evaluator never treats it as "allowed".
var ErrMissingTimestamp = errors.New("evaluation timestamp is required")

// Evaluator is stateless apart from its logger and safe for concurrent use.
type Evaluator struct {
	logger log.Logger
}

// New returns an Evaluator. A nil logger discards skip warnings.
func New(logger log.Logger) *Evaluator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Evaluator{logger: logger}
}

// Evaluate returns the decision for rules at the given instant.
//
// Inactive rules (disabled or soft deleted) are ignored. The remaining rules
// are checked in the order given and the first match denies the send.
// The instant is used as-is: callers convert it to the list's timezone first.
// Malformed rules are logged and skipped. rules is never modified.
func (e *Evaluator) Evaluate(rules []domain.Rule, at time.Time) (domain.Decision, error) {
	if at.IsZero() {
		return domain.Decision{}, ErrMissingTimestamp
	}
	for _, r := range rules {
		if !r.IsActive() {
			continue
		}
		if r.Window == nil {
			e.skip(r, "rule has no window")
			continue
		}
		if err := r.Window.Validate(); err != nil {
			e.skip(r, err.Error())
			continue
		}
		if r.Window.Matches(at) {
			return domain.DenyDecision(r), nil
		}
	}
	return domain.AllowDecision(), nil
}

func (e *Evaluator) skip(r domain.Rule, cause string) {
	e.logger.Warn(map[string]any{
		"rule_id":   r.ID,
		"list":      r.Key().String(),
		"rule_name": r.Name,
		"cause":     cause,
	}, "skipping malformed no-send rule")
}
