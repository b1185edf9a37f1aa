package activities

import (
	"errors"
	"strings"
	"testing"

	"github.com/verdantlabs/footprint/internal/api"
)

func TestNewCategoryNormalizesInput(t *testing.T) {
	category, err := NewCategory("  Transport ")
	if err != nil {
		t.Fatalf("unexpected category error: %v", err)
	}
	if category != CategoryTransport {
		t.Fatalf("expected transport, got %q", category)
	}
}

func TestNewCategoryRejectsUnknown(t *testing.T) {
	if _, err := NewCategory("aviation"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestValidateInput(t *testing.T) {
	valid := api.ActivityInput{
		Category: "transport",
		Type:     "bus",
		Value:    25,
		Date:     "2026-08-15",
	}

	tests := []struct {
		name    string
		mutate  func(*api.ActivityInput)
		wantErr error
	}{
		{name: "valid", mutate: func(*api.ActivityInput) {}},
		{name: "bad-category", mutate: func(in *api.ActivityInput) { in.Category = "other" }, wantErr: ErrInvalidCategory},
		{name: "missing-type", mutate: func(in *api.ActivityInput) { in.Type = " " }, wantErr: ErrMissingType},
		{name: "zero-value", mutate: func(in *api.ActivityInput) { in.Value = 0 }, wantErr: ErrInvalidValue},
		{name: "huge-value", mutate: func(in *api.ActivityInput) { in.Value = 10001 }, wantErr: ErrInvalidValue},
		{name: "missing-date", mutate: func(in *api.ActivityInput) { in.Date = "" }, wantErr: ErrInvalidDate},
		{name: "bad-date", mutate: func(in *api.ActivityInput) { in.Date = "15/08/2026" }, wantErr: ErrInvalidDate},
		{name: "long-notes", mutate: func(in *api.ActivityInput) { in.Notes = strings.Repeat("x", 501) }, wantErr: ErrNotesTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			err := ValidateInput(input)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected validation error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateUpdateRequiresFullPayload(t *testing.T) {
	err := ValidateUpdate(api.ActivityUpdate{Type: "bus", Value: 10, Date: "2026-08-15"})
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := ValidateUpdate(api.ActivityUpdate{Value: 10, Date: "2026-08-15"}); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestPreviewCO2e(t *testing.T) {
	factors := []api.EmissionFactor{
		{Category: "transport", Type: "bus", Factor: 0.089, Unit: "km"},
		{Category: "transport", Type: "car_petrol", Factor: 0.192, Unit: "km"},
	}
	input := api.ActivityInput{Category: "transport", Type: "bus", Value: 25, Date: "2026-08-15"}

	preview, ok := PreviewCO2e(input, factors)
	if !ok {
		t.Fatalf("expected a matching factor")
	}
	if preview != 2.225 {
		t.Fatalf("expected 2.225, got %v", preview)
	}

	input.Type = "tram"
	if _, ok := PreviewCO2e(input, factors); ok {
		t.Fatalf("expected no preview without a matching factor")
	}
}
