package stubserver

import (
	"math"
	"sort"
	"time"

	"github.com/verdantlabs/footprint/internal/api"
)

const aggregateDateLayout = "2006-01-02"

// periodBounds returns the inclusive start and end dates for a period ending
// at the given instant. "all" is approximated by a ten-year window.
func periodBounds(period string, now time.Time) (time.Time, time.Time) {
	end := now.UTC().Truncate(24 * time.Hour)
	var start time.Time
	switch period {
	case "day":
		start = end
	case "week":
		start = end.AddDate(0, 0, -6)
	case "year":
		start = end.AddDate(-1, 0, 1)
	case "all":
		start = end.AddDate(-10, 0, 0)
	default: // month
		start = end.AddDate(0, -1, 1)
	}
	return start, end
}

func withinBounds(date string, start, end time.Time) bool {
	parsed, err := time.Parse(aggregateDateLayout, date)
	if err != nil {
		return false
	}
	return !parsed.Before(start) && !parsed.After(end)
}

func sumActivities(owned []api.Activity, start, end time.Time) (float64, int) {
	total := 0.0
	count := 0
	for _, activity := range owned {
		if withinBounds(activity.Date, start, end) {
			total += activity.CO2eKg
			count++
		}
	}
	return total, count
}

func buildSummary(owned []api.Activity, period string, now time.Time) api.FootprintSummary {
	start, end := periodBounds(period, now)
	total, count := sumActivities(owned, start, end)

	spanDays := int(end.Sub(start).Hours()/24) + 1
	previousEnd := start.AddDate(0, 0, -1)
	previousStart := previousEnd.AddDate(0, 0, -(spanDays - 1))
	previousTotal, _ := sumActivities(owned, previousStart, previousEnd)

	change := 0.0
	if previousTotal > 0 {
		change = round2((total - previousTotal) / previousTotal * 100)
	}

	return api.FootprintSummary{
		Period:               period,
		StartDate:            start.Format(aggregateDateLayout),
		EndDate:              end.Format(aggregateDateLayout),
		TotalCO2eKg:          round2(total),
		ActivityCount:        count,
		PreviousPeriodCO2eKg: round2(previousTotal),
		ChangePercentage:     change,
		AverageDailyCO2eKg:   round2(total / float64(spanDays)),
	}
}

func buildBreakdown(owned []api.Activity, period string, now time.Time) api.FootprintBreakdown {
	start, end := periodBounds(period, now)

	totals := make(map[string]float64)
	counts := make(map[string]int)
	grandTotal := 0.0
	for _, activity := range owned {
		if !withinBounds(activity.Date, start, end) {
			continue
		}
		totals[activity.Category] += activity.CO2eKg
		counts[activity.Category]++
		grandTotal += activity.CO2eKg
	}

	items := make([]api.CategoryBreakdownItem, 0, len(totals))
	for category, total := range totals {
		percentage := 0.0
		if grandTotal > 0 {
			percentage = round2(total / grandTotal * 100)
		}
		items = append(items, api.CategoryBreakdownItem{
			Category:      category,
			CO2eKg:        round2(total),
			Percentage:    percentage,
			ActivityCount: counts[category],
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CO2eKg > items[j].CO2eKg })

	return api.FootprintBreakdown{
		Period:      period,
		Breakdown:   items,
		TotalCO2eKg: round2(grandTotal),
	}
}

func buildTrend(owned []api.Activity, period string, now time.Time) api.FootprintTrend {
	start, end := periodBounds(period, now)

	byDate := make(map[string]*api.TrendDataPoint)
	grandTotal := 0.0
	for _, activity := range owned {
		if !withinBounds(activity.Date, start, end) {
			continue
		}
		point, exists := byDate[activity.Date]
		if !exists {
			point = &api.TrendDataPoint{Date: activity.Date}
			byDate[activity.Date] = point
		}
		point.CO2eKg = round2(point.CO2eKg + activity.CO2eKg)
		point.ActivityCount++
		grandTotal += activity.CO2eKg
	}

	points := make([]api.TrendDataPoint, 0, len(byDate))
	for _, point := range byDate {
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	average := 0.0
	if len(points) > 0 {
		average = round2(grandTotal / float64(len(points)))
	}

	return api.FootprintTrend{
		Period:        period,
		Granularity:   "daily",
		DataPoints:    points,
		TotalCO2eKg:   round2(grandTotal),
		AverageCO2eKg: average,
	}
}

func buildComparison(owned []api.Activity, region api.Region, period string, now time.Time) api.Comparison {
	summary := buildSummary(owned, period, now)
	start, end := periodBounds(period, now)
	spanDays := int(end.Sub(start).Hours()/24) + 1

	regionalForPeriod := region.AverageAnnualCO2eKg / 365 * float64(spanDays)
	difference := summary.TotalCO2eKg - regionalForPeriod
	differencePct := 0.0
	if regionalForPeriod > 0 {
		differencePct = round2(difference / regionalForPeriod * 100)
	}

	var comparison api.Comparison
	comparison.UserFootprint.Period = summary.Period
	comparison.UserFootprint.TotalCO2eKg = summary.TotalCO2eKg
	comparison.UserFootprint.StartDate = summary.StartDate
	comparison.UserFootprint.EndDate = summary.EndDate
	comparison.UserFootprint.ActivityCount = summary.ActivityCount
	comparison.RegionalAverage.RegionCode = region.Code
	comparison.RegionalAverage.RegionName = region.Name
	comparison.RegionalAverage.AverageAnnualCO2eKg = region.AverageAnnualCO2eKg
	comparison.Metrics.DifferenceKg = round2(difference)
	comparison.Metrics.DifferencePercentage = differencePct
	comparison.Metrics.Percentile = percentileFor(differencePct)
	comparison.Metrics.Rating = ratingFor(differencePct)
	comparison.Metrics.Insights = insightsFor(differencePct, region.Name)

	comparison.Breakdown.UserByCategory = make(map[string]float64)
	for _, item := range buildBreakdown(owned, period, now).Breakdown {
		comparison.Breakdown.UserByCategory[item.Category] = item.CO2eKg
	}
	comparison.Breakdown.RegionalAvgByCategory = map[string]float64{
		"transport": round2(regionalForPeriod * 0.6),
		"energy":    round2(regionalForPeriod * 0.3),
		"food":      round2(regionalForPeriod * 0.1),
	}
	return comparison
}

func ratingFor(differencePct float64) string {
	switch {
	case differencePct <= -50:
		return "excellent"
	case differencePct <= -20:
		return "good"
	case differencePct <= 20:
		return "average"
	case differencePct <= 50:
		return "above_average"
	default:
		return "high"
	}
}

func percentileFor(differencePct float64) int {
	percentile := int(50 + differencePct/2)
	if percentile < 1 {
		percentile = 1
	}
	if percentile > 99 {
		percentile = 99
	}
	return percentile
}

func insightsFor(differencePct float64, regionName string) []string {
	if differencePct <= 0 {
		return []string{"Your footprint is below the " + regionName + " average. Keep it up!"}
	}
	return []string{"Your footprint is above the " + regionName + " average. Transport is usually the biggest lever."}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
