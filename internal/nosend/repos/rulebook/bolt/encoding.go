package bolt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/haukened/nosend/internal/nosend/domain"
)

// record is the persisted shape of a rule: one wide row with a kind
// discriminator and nullable kind-specific columns.
type record struct {
	ID             uint64     `json:"id"`
	TenantID       uint64     `json:"tenant_id"`
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

func encodeRule(r domain.Rule) ([]byte, error) {
	rec := record{
		ID:          r.ID,
		TenantID:    r.TenantID,
		ListID:      r.ListID,
		Name:        r.Name,
		Description: r.Description,
		IsEnabled:   r.Enabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   r.DeletedAt,
	}
	switch w := r.Window.(type) {
	case domain.DayOfWeekWindow:
		rec.DayOfWeekList = make([]int, len(w.Days))
		for i, d := range w.Days {
			rec.DayOfWeekList[i] = int(d)
		}
	case domain.TimeRangeWindow:
		rec.TimeStart = str(w.Start.String())
		rec.TimeEnd = str(w.End.String())
	case domain.SpecificDateWindow:
		rec.SpecificDate = str(w.Date.String())
	case domain.DateRangeWindow:
		rec.DateRangeStart = str(w.Start.String())
		rec.DateRangeEnd = str(w.End.String())
	default:
		return nil, fmt.Errorf("rule %d: cannot encode window %T", r.ID, r.Window)
	}
	rec.SettingType = r.Window.Kind().String()
	return json.Marshal(rec)
}

// decodeRule parses a stored record. Only a record that is not valid JSON is
// an error; a payload that does not form a window yields a rule with a nil
// Window, which evaluation skips.
func decodeRule(data []byte) (domain.Rule, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Rule{}, fmt.Errorf("decode rule record: %w", err)
	}
	return domain.Rule{
		ID:          rec.ID,
		TenantID:    rec.TenantID,
		ListID:      rec.ListID,
		Name:        rec.Name,
		Description: rec.Description,
		Enabled:     rec.IsEnabled,
		Window:      decodeWindow(rec),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		DeletedAt:   rec.DeletedAt,
	}, nil
}

func decodeWindow(rec record) domain.Window {
	kind, err := domain.ParseRuleKind(rec.SettingType)
	if err != nil {
		return nil
	}
	switch kind {
	case domain.KindDayOfWeek:
		days := make([]domain.ISOWeekday, len(rec.DayOfWeekList))
		for i, d := range rec.DayOfWeekList {
			if d < 0 || d > 255 {
				return nil
			}
			days[i] = domain.ISOWeekday(d)
		}
		return domain.DayOfWeekWindow{Days: days}
	case domain.KindTimeRange:
		start, ok1 := parseTime(rec.TimeStart)
		end, ok2 := parseTime(rec.TimeEnd)
		if !ok1 || !ok2 {
			return nil
		}
		return domain.TimeRangeWindow{Start: start, End: end}
	case domain.KindSpecificDate:
		if rec.SpecificDate != nil {
			if rec.DateRangeStart != nil || rec.DateRangeEnd != nil {
				return nil
			}
			d, ok := parseDate(rec.SpecificDate)
			if !ok {
				return nil
			}
			return domain.SpecificDateWindow{Date: d}
		}
		start, ok1 := parseDate(rec.DateRangeStart)
		end, ok2 := parseDate(rec.DateRangeEnd)
		if !ok1 || !ok2 {
			return nil
		}
		return domain.DateRangeWindow{Start: start, End: end}
	}
	return nil
}

func parseTime(s *string) (domain.TimeOfDay, bool) {
	if s == nil {
		return 0, false
	}
	t, err := domain.ParseTimeOfDay(*s)
	return t, err == nil
}

func parseDate(s *string) (domain.Date, bool) {
	if s == nil {
		return domain.Date{}, false
	}
	d, err := domain.ParseDate(*s)
	return d, err == nil
}

func str(s string) *string { return &s }
