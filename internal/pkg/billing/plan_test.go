package billing

import (
	"testing"
	"time"
)

func TestPeriodEnd(t *testing.T) {
	start := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		interval string
		count    int
		want     time.Time
	}{
		{interval: "month", count: 1, want: start.AddDate(0, 0, 30)},
		{interval: "month", count: 3, want: start.AddDate(0, 0, 90)},
		{interval: "YEAR", count: 1, want: start.AddDate(0, 0, 365)},
		{interval: "year", count: 2, want: start.AddDate(0, 0, 730)},
		{interval: "month", count: 0, want: start.AddDate(0, 0, 30)},
		{interval: "week", count: 4, want: start.AddDate(0, 0, 30)},
	}

	for _, tt := range tests {
		if got := PeriodEnd(start, tt.interval, tt.count); !got.Equal(tt.want) {
			t.Fatalf("PeriodEnd(%q, %d) = %v, want %v", tt.interval, tt.count, got, tt.want)
		}
	}
}

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "month", want: "month"},
		{in: " Year ", want: "year"},
		{in: "daily", want: "unknown"},
		{in: "", want: "unknown"},
	}

	for _, tt := range tests {
		if got := normalizeInterval(tt.in); got != tt.want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := newID(prefixSubscription)
	if len(id) != len(prefixSubscription)+32 {
		t.Fatalf("unexpected id length %d for %q", len(id), id)
	}
	if id[:4] != "sub_" {
		t.Fatalf("expected sub_ prefix, got %q", id)
	}
	if newID(prefixSubscription) == id {
		t.Fatalf("expected unique ids")
	}
}
