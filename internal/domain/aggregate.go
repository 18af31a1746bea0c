package domain

import (
	"sort"
	"time"
)

// AggregateMetric rolls raw rows up into a MetricSeries. Rows sharing a
// normalized place name are summed into ByPlace; rows sharing a normalized
// subregion name are summed into BySubregion. Duplicate rows, including the
// same subregion appearing in several snapshot files, are summed as well.
func AggregateMetric(metric Metric, records []RawDailyRecord) MetricSeries {
	byPlace := make(map[string]map[time.Time]int64)
	bySubregion := make(map[string]map[time.Time]int64)

	for _, rec := range records {
		place := NormalizeName(rec.Place)
		subregion := NormalizeName(rec.Subregion)
		for _, c := range rec.Counts {
			addCount(byPlace, place, c)
			addCount(bySubregion, subregion, c)
		}
	}

	return MetricSeries{
		Metric:      metric,
		ByPlace:     toSeries(byPlace),
		BySubregion: toSeries(bySubregion),
	}
}

func addCount(acc map[string]map[time.Time]int64, key string, c DailyCount) {
	days, ok := acc[key]
	if !ok {
		days = make(map[time.Time]int64)
		acc[key] = days
	}
	days[c.Date] += c.Count
}

func toSeries(acc map[string]map[time.Time]int64) NormalizedSeries {
	out := make(NormalizedSeries, len(acc))
	for key, days := range acc {
		obs := make([]Observation, 0, len(days))
		for d, n := range days {
			obs = append(obs, Observation{Date: d, Count: n})
		}
		sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
		out[key] = obs
	}
	return out
}
