package domain

import (
	"fmt"
	"strings"
	"time"
)

// RuleKind identifies which shape a no-send rule takes.
type RuleKind uint8

const (
	// KindDayOfWeek forbids sends on whole days of the week.
	KindDayOfWeek RuleKind = iota + 1
	// KindTimeRange forbids sends within a time-of-day window, possibly crossing midnight.
	KindTimeRange
	// KindSpecificDate forbids sends on a single date or an inclusive date range.
	KindSpecificDate
)

// String returns the stable setting_type name of the kind.
func (k RuleKind) String() string {
	switch k {
	case KindDayOfWeek:
		return "day_of_week"
	case KindTimeRange:
		return "time_range"
	case KindSpecificDate:
		return "specific_date"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

// ParseRuleKind converts a setting_type string into a RuleKind (case-insensitive).
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day_of_week":
		return KindDayOfWeek, nil
	case "time_range":
		return KindTimeRange, nil
	case "specific_date":
		return KindSpecificDate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// ListKey scopes rules to one list of one tenant.
type ListKey struct {
	TenantID uint64
	ListID   uint64
}

func (k ListKey) String() string { return fmt.Sprintf("%d/%d", k.TenantID, k.ListID) }

// Rule is one configured no-send restriction, owned by exactly one list.
//
// Rules are built by the validator; after creation only Name, Description and
// Enabled change. Removal is a soft delete through DeletedAt.
type Rule struct {
	ID          uint64
	TenantID    uint64
	ListID      uint64
	Name        string
	Description string
	Enabled     bool
	Window      Window
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Key returns the owning list of the rule.
func (r Rule) Key() ListKey { return ListKey{TenantID: r.TenantID, ListID: r.ListID} }

// Kind returns the kind of the rule's window, or 0 when the window is missing.
func (r Rule) Kind() RuleKind {
	if r.Window == nil {
		return 0
	}
	return r.Window.Kind()
}

// IsDeleted reports whether the rule has been soft deleted.
func (r Rule) IsDeleted() bool { return r.DeletedAt != nil }

// IsActive reports whether the rule takes part in evaluation.
func (r Rule) IsActive() bool { return r.Enabled && r.DeletedAt == nil }

// SoftDelete marks the rule deleted at the given instant. Deleting twice keeps the first timestamp.
func (r *Rule) SoftDelete(at time.Time) {
	if r.DeletedAt != nil {
		return
	}
	t := at
	r.DeletedAt = &t
	r.UpdatedAt = at
}

// Clone returns a copy that shares no mutable state with r.
func (r Rule) Clone() Rule {
	c := r
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	if w, ok := r.Window.(DayOfWeekWindow); ok {
		c.Window = DayOfWeekWindow{Days: append([]ISOWeekday(nil), w.Days...)}
	}
	return c
}
