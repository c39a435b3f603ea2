package domain

// Decision is the outcome of evaluating a rule set at an instant.
// Pure value type, no external dependencies.
type Decision struct {
	Allowed bool     // true when no active rule matched
	Reason  string   // "<label>: <rule name>" for denials, empty when allowed
	RuleID  uint64   // id of the blocking rule, 0 when allowed
	Kind    RuleKind // kind of the blocking rule, 0 when allowed
}

// IsAllowed is a convenience accessor.
func (d Decision) IsAllowed() bool { return d.Allowed }

// AllowDecision returns a decision that permits the send.
func AllowDecision() Decision { return Decision{Allowed: true} }

// DenyDecision returns a decision blocked by r, whose window must be non-nil.
func DenyDecision(r Rule) Decision {
	return Decision{
		Allowed: false,
		Reason:  r.Window.Label() + ": " + r.Name,
		RuleID:  r.ID,
		Kind:    r.Window.Kind(),
	}
}
