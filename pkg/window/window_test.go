package window

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestContains(t *testing.T) {
	ref := time.Date(2024, time.March, 18, 10, 0, 0, 0, time.UTC)
	m := Of(ref)

	tests := []struct {
		name string
		date civil.Date
		want bool
	}{
		{"first day of month", civil.Date{Year: 2024, Month: time.March, Day: 1}, true},
		{"last day of month", civil.Date{Year: 2024, Month: time.March, Day: 31}, true},
		{"last day of previous month", civil.Date{Year: 2024, Month: time.February, Day: 29}, false},
		{"first day of next month", civil.Date{Year: 2024, Month: time.April, Day: 1}, false},
		{"same month previous year", civil.Date{Year: 2023, Month: time.March, Day: 5}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.Contains(tc.date); got != tc.want {
				t.Errorf("Contains(%s): got %v, want %v", tc.date, got, tc.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	ref := time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC)

	got, err := Parse("", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Month{Year: 2024, Month: time.March}) {
		t.Errorf("empty month: got %v, want 2024-03", got)
	}

	got, err = Parse("2023-12", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "2023-12" {
		t.Errorf("month: got %s, want 2023-12", got)
	}

	if _, err := Parse("12/2023", ref); err == nil {
		t.Error("expected error for malformed month")
	}
}

func TestBoundaries(t *testing.T) {
	m := Month{Year: 2024, Month: time.February}
	if got := m.Last(); got != (civil.Date{Year: 2024, Month: time.February, Day: 29}) {
		t.Errorf("last: got %s", got)
	}
	since := m.Since(time.UTC)
	if !since.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since: got %s", since)
	}
}
