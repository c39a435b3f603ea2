package domain

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{"2025-01-01", Date{2025, time.January, 1}, false},
		{"2024-02-29", Date{2024, time.February, 29}, false},
		{" 2024-12-31 ", Date{2024, time.December, 31}, false},
		{"2025-02-29", Date{}, true},
		{"2025-13-01", Date{}, true},
		{"2025/01/01", Date{}, true},
		{"", Date{}, true},
	}

	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDate(%q) expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDate(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDate_Compare(t *testing.T) {
	a := MustDate(2024, time.December, 29)
	b := MustDate(2025, time.January, 3)

	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatalf("Compare ordering broken")
	}
	if !a.Before(b) || a.After(b) {
		t.Fatalf("Before/After broken")
	}
	if MustDate(2025, time.March, 1).Compare(MustDate(2025, time.February, 28)) != 1 {
		t.Fatalf("month ordering broken")
	}
}

func TestDate_DaysUntil(t *testing.T) {
	cases := []struct {
		from, to Date
		want     int
	}{
		{MustDate(2025, 1, 1), MustDate(2025, 1, 1), 0},
		{MustDate(2024, 12, 29), MustDate(2025, 1, 3), 5},
		{MustDate(2024, 1, 1), MustDate(2025, 1, 1), 366},
		{MustDate(2025, 1, 1), MustDate(2027, 1, 1), 730},
		{MustDate(2025, 1, 3), MustDate(2024, 12, 29), -5},
	}
	for _, tc := range cases {
		if got := tc.from.DaysUntil(tc.to); got != tc.want {
			t.Errorf("%v.DaysUntil(%v) = %d, want %d", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDateOf_UsesOwnLocation(t *testing.T) {
	at := time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)

	if got := DateOf(at); got != MustDate(2024, 12, 31) {
		t.Errorf("UTC DateOf = %v", got)
	}
	if got := DateOf(at.In(tokyo)); got != MustDate(2025, 1, 1) {
		t.Errorf("JST DateOf = %v", got)
	}
}

func TestDate_IsValidAndString(t *testing.T) {
	if (Date{2025, time.February, 30}).IsValid() {
		t.Errorf("Feb 30 should be invalid")
	}
	if (Date{}).IsValid() {
		t.Errorf("zero date should be invalid")
	}
	if s := MustDate(2025, time.January, 2).String(); s != "2025-01-02" {
		t.Errorf("String() = %q", s)
	}
}
