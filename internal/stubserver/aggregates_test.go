package stubserver

import (
	"testing"
	"time"

	"github.com/verdantlabs/footprint/internal/api"
)

func TestPeriodBounds(t *testing.T) {
	now := time.Date(2026, 8, 15, 13, 45, 0, 0, time.UTC)
	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
	}{
		{period: "day", wantStart: "2026-08-15", wantEnd: "2026-08-15"},
		{period: "week", wantStart: "2026-08-09", wantEnd: "2026-08-15"},
		{period: "month", wantStart: "2026-07-16", wantEnd: "2026-08-15"},
		{period: "year", wantStart: "2025-08-16", wantEnd: "2026-08-15"},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end := periodBounds(tt.period, now)
			if got := start.Format(aggregateDateLayout); got != tt.wantStart {
				t.Fatalf("start = %q, want %q", got, tt.wantStart)
			}
			if got := end.Format(aggregateDateLayout); got != tt.wantEnd {
				t.Fatalf("end = %q, want %q", got, tt.wantEnd)
			}
		})
	}
}

func TestBuildSummaryComparesWithPreviousPeriod(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	owned := []api.Activity{
		{Category: "transport", CO2eKg: 10, Date: "2026-08-10"},
		{Category: "transport", CO2eKg: 5, Date: "2026-08-12"},
		// Falls in the previous week window.
		{Category: "transport", CO2eKg: 30, Date: "2026-08-05"},
	}

	summary := buildSummary(owned, "week", now)
	if summary.TotalCO2eKg != 15 {
		t.Fatalf("expected total 15, got %v", summary.TotalCO2eKg)
	}
	if summary.ActivityCount != 2 {
		t.Fatalf("expected 2 activities in the window, got %d", summary.ActivityCount)
	}
	if summary.PreviousPeriodCO2eKg != 30 {
		t.Fatalf("expected previous total 30, got %v", summary.PreviousPeriodCO2eKg)
	}
	if summary.ChangePercentage != -50 {
		t.Fatalf("expected -50%% change, got %v", summary.ChangePercentage)
	}
}

func TestRatingThresholds(t *testing.T) {
	tests := []struct {
		difference float64
		want       string
	}{
		{difference: -80, want: "excellent"},
		{difference: -50, want: "excellent"},
		{difference: -30, want: "good"},
		{difference: 0, want: "average"},
		{difference: 35, want: "above_average"},
		{difference: 90, want: "high"},
	}
	for _, tt := range tests {
		if got := ratingFor(tt.difference); got != tt.want {
			t.Fatalf("ratingFor(%v) = %q, want %q", tt.difference, got, tt.want)
		}
	}
}

func TestPercentileForIsClamped(t *testing.T) {
	if got := percentileFor(-200); got != 1 {
		t.Fatalf("expected clamp to 1, got %d", got)
	}
	if got := percentileFor(200); got != 99 {
		t.Fatalf("expected clamp to 99, got %d", got)
	}
	if got := percentileFor(0); got != 50 {
		t.Fatalf("expected 50 at parity, got %d", got)
	}
}
