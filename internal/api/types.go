package api

import "time"

// Activity is the server-authoritative activity record. The co2e value is
// always computed server-side; clients only ever preview it.
type Activity struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Type      string         `json:"type"`
	Value     float64        `json:"value"`
	CO2eKg    float64        `json:"co2e_kg"`
	Date      string         `json:"date"`
	Notes     string         `json:"notes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActivityInput is the payload for creating an activity.
type ActivityInput struct {
	Category string         `json:"category"`
	Type     string         `json:"type"`
	Value    float64        `json:"value"`
	Date     string         `json:"date"`
	Notes    string         `json:"notes,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ActivityUpdate is the payload for updating an activity. The category is
// immutable once logged.
type ActivityUpdate struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Date  string  `json:"date"`
	Notes string  `json:"notes,omitempty"`
}

// EmissionFactor describes one entry of the server factor catalog.
type EmissionFactor struct {
	ID       int64   `json:"id"`
	Category string  `json:"category"`
	Type     string  `json:"type"`
	Factor   float64 `json:"factor"`
	Unit     string  `json:"unit"`
	Source   string  `json:"source,omitempty"`
}

// FootprintSummary aggregates emissions over a period.
type FootprintSummary struct {
	Period               string  `json:"period"`
	StartDate            string  `json:"start_date"`
	EndDate              string  `json:"end_date"`
	TotalCO2eKg          float64 `json:"total_co2e_kg"`
	ActivityCount        int     `json:"activity_count"`
	PreviousPeriodCO2eKg float64 `json:"previous_period_co2e_kg"`
	ChangePercentage     float64 `json:"change_percentage"`
	AverageDailyCO2eKg   float64 `json:"average_daily_co2e_kg"`
}

// CategoryBreakdownItem is one category slice of a breakdown.
type CategoryBreakdownItem struct {
	Category      string  `json:"category"`
	CO2eKg        float64 `json:"co2e_kg"`
	Percentage    float64 `json:"percentage"`
	ActivityCount int     `json:"activity_count"`
}

// FootprintBreakdown splits emissions by category.
type FootprintBreakdown struct {
	Period      string                  `json:"period"`
	Breakdown   []CategoryBreakdownItem `json:"breakdown"`
	TotalCO2eKg float64                 `json:"total_co2e_kg"`
}

// TrendDataPoint is one point of an emissions trend series.
type TrendDataPoint struct {
	Date          string  `json:"date"`
	CO2eKg        float64 `json:"co2e_kg"`
	ActivityCount int     `json:"activity_count"`
}

// FootprintTrend is the emissions series for a period.
type FootprintTrend struct {
	Period        string           `json:"period"`
	Granularity   string           `json:"granularity"`
	DataPoints    []TrendDataPoint `json:"data_points"`
	TotalCO2eKg   float64          `json:"total_co2e_kg"`
	AverageCO2eKg float64          `json:"average_co2e_kg"`
}

// Region describes a comparison region and its annual average.
type Region struct {
	Code                string  `json:"code"`
	Name                string  `json:"name"`
	AverageAnnualCO2eKg float64 `json:"average_annual_co2e_kg"`
}

// Comparison is the regional comparison response.
type Comparison struct {
	UserFootprint struct {
		Period        string  `json:"period"`
		TotalCO2eKg   float64 `json:"total_co2e_kg"`
		StartDate     string  `json:"start_date"`
		EndDate       string  `json:"end_date"`
		ActivityCount int     `json:"activity_count"`
	} `json:"user_footprint"`
	RegionalAverage struct {
		RegionCode          string  `json:"region_code"`
		RegionName          string  `json:"region_name"`
		AverageAnnualCO2eKg float64 `json:"average_annual_co2e_kg"`
	} `json:"regional_average"`
	Metrics struct {
		DifferenceKg         float64  `json:"difference_kg"`
		DifferencePercentage float64  `json:"difference_percentage"`
		Percentile           int      `json:"percentile"`
		Rating               string   `json:"rating"`
		Insights             []string `json:"insights"`
	} `json:"comparison"`
	Breakdown struct {
		UserByCategory        map[string]float64 `json:"user_by_category"`
		RegionalAvgByCategory map[string]float64 `json:"regional_avg_by_category"`
	} `json:"breakdown"`
}

// UserProfile is the authenticated account profile.
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrationResult reports how many activities were re-attributed.
type MigrationResult struct {
	MigratedCount int `json:"migrated_count"`
}

// Health is the service health response.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
