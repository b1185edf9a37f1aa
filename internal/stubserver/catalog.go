package stubserver

import "github.com/verdantlabs/footprint/internal/api"

// emissionFactors is the stub's fixed catalog. Factors approximate published
// per-unit figures so previews and devserver totals look plausible.
var emissionFactors = []api.EmissionFactor{
	{ID: 1, Category: "transport", Type: "car_petrol", Factor: 0.192, Unit: "km", Source: "stub"},
	{ID: 2, Category: "transport", Type: "car_diesel", Factor: 0.171, Unit: "km", Source: "stub"},
	{ID: 3, Category: "transport", Type: "bus", Factor: 0.089, Unit: "km", Source: "stub"},
	{ID: 4, Category: "transport", Type: "train", Factor: 0.041, Unit: "km", Source: "stub"},
	{ID: 5, Category: "transport", Type: "motorcycle", Factor: 0.103, Unit: "km", Source: "stub"},
	{ID: 6, Category: "transport", Type: "flight_short", Factor: 0.255, Unit: "km", Source: "stub"},
	{ID: 7, Category: "transport", Type: "flight_long", Factor: 0.195, Unit: "km", Source: "stub"},
	{ID: 8, Category: "transport", Type: "bicycle", Factor: 0, Unit: "km", Source: "stub"},
	{ID: 9, Category: "energy", Type: "electricity", Factor: 0.233, Unit: "kWh", Source: "stub"},
	{ID: 10, Category: "energy", Type: "natural_gas", Factor: 0.184, Unit: "kWh", Source: "stub"},
	{ID: 11, Category: "energy", Type: "heating_oil", Factor: 2.52, Unit: "L", Source: "stub"},
	{ID: 12, Category: "food", Type: "beef", Factor: 27.0, Unit: "serving", Source: "stub"},
	{ID: 13, Category: "food", Type: "pork", Factor: 12.1, Unit: "serving", Source: "stub"},
	{ID: 14, Category: "food", Type: "chicken", Factor: 6.9, Unit: "serving", Source: "stub"},
	{ID: 15, Category: "food", Type: "fish", Factor: 6.1, Unit: "serving", Source: "stub"},
	{ID: 16, Category: "food", Type: "vegetarian_meal", Factor: 1.7, Unit: "serving", Source: "stub"},
	{ID: 17, Category: "food", Type: "vegan_meal", Factor: 0.9, Unit: "serving", Source: "stub"},
}

// regions mirrors the comparison catalog of the production service.
var regions = []api.Region{
	{Code: "world", Name: "World Average", AverageAnnualCO2eKg: 4800},
	{Code: "na", Name: "North America", AverageAnnualCO2eKg: 16000},
	{Code: "eu", Name: "Europe", AverageAnnualCO2eKg: 6800},
	{Code: "asia", Name: "Asia", AverageAnnualCO2eKg: 4700},
	{Code: "africa", Name: "Africa", AverageAnnualCO2eKg: 1100},
	{Code: "oceania", Name: "Oceania", AverageAnnualCO2eKg: 12000},
}

func lookupFactor(category, activityType string) (api.EmissionFactor, bool) {
	for _, factor := range emissionFactors {
		if factor.Category == category && factor.Type == activityType {
			return factor, true
		}
	}
	return api.EmissionFactor{}, false
}

func lookupRegion(code string) (api.Region, bool) {
	for _, region := range regions {
		if region.Code == code {
			return region, true
		}
	}
	return api.Region{}, false
}
