package wire

import (
	"time"

	"github.com/haukened/nosend/internal/nosend/domain"
)

// RuleView is the flattened read model of a rule. Fields that do not belong
// to the rule's kind are null.
type RuleView struct {
	ID             uint64     `json:"id"`
	ListID         uint64     `json:"list_id"`
	SettingType    string     `json:"setting_type"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	IsEnabled      bool       `json:"is_enabled"`
	DayOfWeekList  []int      `json:"day_of_week_list"`
	TimeStart      *string    `json:"time_start"`
	TimeEnd        *string    `json:"time_end"`
	SpecificDate   *string    `json:"specific_date"`
	DateRangeStart *string    `json:"date_range_start"`
	DateRangeEnd   *string    `json:"date_range_end"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at"`
}

// ToView flattens r. A rule without a window renders with an empty setting_type.
func ToView(r domain.Rule) RuleView {
	v := RuleView{
		ID:          r.ID,
		ListID:      r.ListID,
		Name:        r.Name,
		Description: r.Description,
		IsEnabled:   r.Enabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DeletedAt != nil {
		at := *r.DeletedAt
		v.DeletedAt = &at
	}
	if r.Window == nil {
		return v
	}
	v.SettingType = r.Window.Kind().String()
	switch w := r.Window.(type) {
	case domain.DayOfWeekWindow:
		v.DayOfWeekList = make([]int, len(w.Days))
		for i, d := range w.Days {
			v.DayOfWeekList[i] = int(d)
		}
	case domain.TimeRangeWindow:
		v.TimeStart = ptr(w.Start.String())
		v.TimeEnd = ptr(w.End.String())
	case domain.SpecificDateWindow:
		v.SpecificDate = ptr(w.Date.String())
	case domain.DateRangeWindow:
		v.DateRangeStart = ptr(w.Start.String())
		v.DateRangeEnd = ptr(w.End.String())
	}
	return v
}

// ToViews flattens rules in order.
func ToViews(rules []domain.Rule) []RuleView {
	out := make([]RuleView, len(rules))
	for i, r := range rules {
		out[i] = ToView(r)
	}
	return out
}

// DecisionView is the outward shape of an evaluation result.
type DecisionView struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	RuleID      uint64    `json:"rule_id,omitempty"`
	SettingType string    `json:"setting_type,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ToDecisionView renders d as evaluated at at.
func ToDecisionView(d domain.Decision, at time.Time) DecisionView {
	v := DecisionView{Allowed: d.Allowed, Reason: d.Reason, RuleID: d.RuleID, EvaluatedAt: at}
	if !d.Allowed && d.Kind != 0 {
		v.SettingType = d.Kind.String()
	}
	return v
}

func ptr(s string) *string { return &s }
