package domain

import (
	"errors"
	"testing"
	"time"
)

func date(value string) time.Time {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolveMonthEnd(t *testing.T) {
	cases := []struct {
		name       string
		completion string
		offset     int
		want       string
	}{
		{"next month end", "2025-01-15", 1, "2025-02-28"},
		{"leap february", "2024-01-15", 1, "2024-02-29"},
		{"same month", "2025-06-10", 0, "2025-06-30"},
		{"year carry", "2025-11-20", 2, "2026-01-31"},
		{"december wrap", "2025-12-05", 1, "2026-01-31"},
		{"thirty day month", "2025-03-03", 1, "2025-04-30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(date(tc.completion), Cycle{
				Type:               CycleMonthEnd,
				PaymentMonthOffset: tc.offset,
			})
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if want := date(tc.want); !got.Equal(want) {
				t.Errorf("got %s, want %s", got.Format("2006-01-02"), tc.want)
			}
		})
	}
}

func TestResolveSpecificDate(t *testing.T) {
	base := Cycle{
		Type:               CycleSpecificDate,
		ClosingDay:         25,
		PaymentMonthOffset: 1,
		PaymentDay:         15,
	}
	cases := []struct {
		name       string
		completion string
		cycle      Cycle
		want       string
	}{
		{"before closing", "2025-01-20", base, "2025-02-15"},
		{"on closing day", "2025-01-25", base, "2025-02-15"},
		{"after closing", "2025-01-26", base, "2025-03-15"},
		{"closing near year end", "2025-12-26", base, "2026-02-15"},
		{
			name:       "payment day clamped to short month",
			completion: "2025-03-10",
			cycle:      Cycle{Type: CycleSpecificDate, ClosingDay: 25, PaymentMonthOffset: 1, PaymentDay: 31},
			want:       "2025-04-30",
		},
		{
			name:       "payment day clamped to leap february",
			completion: "2024-01-10",
			cycle:      Cycle{Type: CycleSpecificDate, ClosingDay: 25, PaymentMonthOffset: 1, PaymentDay: 31},
			want:       "2024-02-29",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(date(tc.completion), tc.cycle)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if want := date(tc.want); !got.Equal(want) {
				t.Errorf("got %s, want %s", got.Format("2006-01-02"), tc.want)
			}
		})
	}
}

func TestResolveRejectsUnknownCycleType(t *testing.T) {
	_, err := Resolve(date("2025-01-15"), Cycle{Type: "quarterly"})
	if !errors.Is(err, ErrUnsupportedCycleType) {
		t.Fatalf("expected ErrUnsupportedCycleType, got %v", err)
	}
}

func TestCycleValidate(t *testing.T) {
	cases := []struct {
		name  string
		cycle Cycle
		want  error
	}{
		{"month_end ok", Cycle{Type: CycleMonthEnd, PaymentMonthOffset: 1}, nil},
		{"negative offset", Cycle{Type: CycleMonthEnd, PaymentMonthOffset: -1}, ErrInvalidMonthOffset},
		{"closing day zero", Cycle{Type: CycleSpecificDate, PaymentDay: 15}, ErrInvalidClosingDay},
		{"closing day high", Cycle{Type: CycleSpecificDate, ClosingDay: 32, PaymentDay: 15}, ErrInvalidClosingDay},
		{"payment day zero", Cycle{Type: CycleSpecificDate, ClosingDay: 25}, ErrInvalidPaymentDay},
		{"empty type", Cycle{}, ErrUnsupportedCycleType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cycle.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
