package weather

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// UnknownCondition is used when no observation in a period carries a label.
const UnknownCondition = "Unknown"

// PartitionByPeriod validates observations against the target date and
// buckets them by the hour of their timestamp. Every observation lands in
// exactly one bucket; buckets keep chronological order.
func PartitionByPeriod(date time.Time, observations []Observation) (map[Period][]Observation, error) {
	for i, o := range observations {
		if err := validateObservation(date, o); err != nil {
			return nil, fmt.Errorf("%w: observation %d: %v", ErrAggregation, i, err)
		}
	}

	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	buckets := make(map[Period][]Observation, len(Periods))
	for _, o := range sorted {
		p, err := PeriodForHour(o.Time.Hour())
		if err != nil {
			return nil, fmt.Errorf("%w: observation at %s: %v", ErrAggregation, o.Time.Format(time.RFC3339), err)
		}
		buckets[p] = append(buckets[p], o)
	}
	return buckets, nil
}

// AggregatePeriods computes one summary per non-empty period, in period order.
// Periods without observations are omitted.
func AggregatePeriods(date time.Time, observations []Observation) ([]PeriodSummary, error) {
	buckets, err := PartitionByPeriod(date, observations)
	if err != nil {
		return nil, err
	}

	summaries := make([]PeriodSummary, 0, len(Periods))
	for _, p := range Periods {
		obs := buckets[p]
		if len(obs) == 0 {
			continue
		}
		summaries = append(summaries, summarize(p, obs))
	}
	return summaries, nil
}

func summarize(p Period, obs []Observation) PeriodSummary {
	var (
		sumTemp     float64
		sumFeels    float64
		sumHumidity float64
		sumWind     float64
	)
	for _, o := range obs {
		sumTemp += o.TemperatureC
		sumFeels += o.FeelsLikeC
		sumHumidity += o.HumidityPct
		sumWind += o.WindKph
	}

	n := float64(len(obs))
	return PeriodSummary{
		Period:         p,
		Samples:        len(obs),
		AvgTemperature: Round1(sumTemp / n),
		AvgFeelsLike:   Round1(sumFeels / n),
		AvgHumidity:    Round1(sumHumidity / n),
		AvgWindSpeed:   Round1(sumWind / n),
		Condition:      RepresentativeCondition(obs),
	}
}

// RepresentativeCondition picks the most frequent non-empty condition label.
// Ties go to the label seen first; obs must be in chronological order.
func RepresentativeCondition(obs []Observation) string {
	counts := make(map[string]int)
	var order []string
	for _, o := range obs {
		label := strings.TrimSpace(o.Condition)
		if label == "" {
			continue
		}
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
	}

	best := UnknownCondition
	bestCount := 0
	for _, label := range order {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}

// Round1 rounds half away from zero to one decimal place, matching the
// numeric(4,1) columns of the destination table.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func validateObservation(date time.Time, o Observation) error {
	if o.Time.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if !CivilDate(o.Time).Equal(CivilDate(date)) {
		return fmt.Errorf("timestamp %s is outside %s", o.Time.Format("2006-01-02 15:04"), date.Format(DateLayout))
	}
	for name, v := range map[string]float64{
		"temperature": o.TemperatureC,
		"feels-like":  o.FeelsLikeC,
		"humidity":    o.HumidityPct,
		"wind speed":  o.WindKph,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not a finite number", name)
		}
	}
	return nil
}
