package activities

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verdantlabs/footprint/internal/api"
)

// Category enumerates the supported activity categories.
type Category string

const (
	// CategoryTransport covers journeys measured in km.
	CategoryTransport Category = "transport"
	// CategoryEnergy covers home energy measured in kWh or litres.
	CategoryEnergy Category = "energy"
	// CategoryFood covers food measured in servings.
	CategoryFood Category = "food"
)

const (
	maxActivityValue = 10000
	maxNotesLength   = 500
	dateLayout       = "2006-01-02"
)

var (
	// ErrInvalidCategory indicates a category outside the fixed enumeration.
	ErrInvalidCategory = errors.New("activities: invalid category")
	// ErrMissingType indicates an empty activity sub-type.
	ErrMissingType = errors.New("activities: activity type required")
	// ErrInvalidValue indicates a non-positive or out-of-range magnitude.
	ErrInvalidValue = errors.New("activities: value must be positive and at most 10000")
	// ErrInvalidDate indicates a missing or malformed activity date.
	ErrInvalidDate = errors.New("activities: invalid date")
	// ErrNotesTooLong indicates notes exceeding the storage bound.
	ErrNotesTooLong = errors.New("activities: notes exceed 500 characters")
	// ErrUnknownActivity indicates an id absent from the cached collection.
	ErrUnknownActivity = errors.New("activities: unknown activity id")
)

// NewCategory validates raw input and returns a Category.
func NewCategory(rawInput string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(rawInput)))
	switch normalized {
	case CategoryTransport, CategoryEnergy, CategoryFood:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, rawInput)
}

// String returns the underlying category name.
func (c Category) String() string {
	return string(c)
}

// ValidateInput rejects malformed creation payloads before any request is sent.
func ValidateInput(input api.ActivityInput) error {
	if _, err := NewCategory(input.Category); err != nil {
		return err
	}
	if strings.TrimSpace(input.Type) == "" {
		return ErrMissingType
	}
	if err := validateCommon(input.Value, input.Date, input.Notes); err != nil {
		return err
	}
	return nil
}

// ValidateUpdate rejects malformed update payloads before any request is sent.
func ValidateUpdate(patch api.ActivityUpdate) error {
	if strings.TrimSpace(patch.Type) == "" {
		return ErrMissingType
	}
	if err := validateCommon(patch.Value, patch.Date, patch.Notes); err != nil {
		return err
	}
	return nil
}

func validateCommon(value float64, date, notes string) error {
	if value <= 0 || value > maxActivityValue {
		return fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}
	if strings.TrimSpace(date) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if len(notes) > maxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// PreviewCO2e computes the unconfirmed value-times-factor preview shown ahead
// of submission. The server's authoritative value replaces it on reconcile.
func PreviewCO2e(input api.ActivityInput, factors []api.EmissionFactor) (float64, bool) {
	for _, factor := range factors {
		if factor.Category == input.Category && factor.Type == input.Type {
			return input.Value * factor.Factor, true
		}
	}
	return 0, false
}
