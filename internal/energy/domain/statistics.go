package energy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a sample boundary. The host sends epoch milliseconds; older
// versions send RFC 3339 strings, which are accepted as well.
type Timestamp struct {
	time.Time
}

// At wraps t.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

// UnmarshalJSON accepts epoch milliseconds or an RFC 3339 string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return fmt.Errorf("energy: invalid timestamp %q: %w", value, err)
		}
		ts.Time = parsed
		return nil
	}
	var millis float64
	if err := json.Unmarshal(data, &millis); err != nil {
		return fmt.Errorf("energy: invalid timestamp %s: %w", data, err)
	}
	ts.Time = time.UnixMilli(int64(millis))
	return nil
}

// MarshalJSON encodes epoch milliseconds.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UnixMilli())
}

// StatisticValue is one sample of a long-term statistic.
type StatisticValue struct {
	Start     Timestamp  `json:"start"`
	End       Timestamp  `json:"end"`
	LastReset *Timestamp `json:"last_reset,omitempty"`
	Max       *float64   `json:"max,omitempty"`
	Mean      *float64   `json:"mean,omitempty"`
	Min       *float64   `json:"min,omitempty"`
	Sum       *float64   `json:"sum,omitempty"`
	State     *float64   `json:"state,omitempty"`
}

// Statistics maps a statistic id to its samples ordered by start.
type Statistics map[string][]StatisticValue

// StatisticMetadata describes a statistic.
type StatisticMetadata struct {
	StatisticsUnitOfMeasurement *string `json:"statistics_unit_of_measurement"`
	StatisticID                 string  `json:"statistic_id"`
	Source                      string  `json:"source"`
	Name                        *string `json:"name,omitempty"`
	HasSum                      bool    `json:"has_sum"`
	HasMean                     bool    `json:"has_mean"`
	UnitClass                   *string `json:"unit_class"`
}

// Period is the statistics aggregation period.
type Period string

const (
	Period5Minute Period = "5minute"
	PeriodHour    Period = "hour"
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
)

// StatisticType selects which fields of a sample the host returns.
type StatisticType string

const (
	StatisticLastReset StatisticType = "last_reset"
	StatisticMax       StatisticType = "max"
	StatisticMean      StatisticType = "mean"
	StatisticMin       StatisticType = "min"
	StatisticState     StatisticType = "state"
	StatisticSum       StatisticType = "sum"
)

// UnitConfiguration asks the host to convert statistics into these units.
type UnitConfiguration struct {
	Energy      string `json:"energy,omitempty"`
	Power       string `json:"power,omitempty"`
	Pressure    string `json:"pressure,omitempty"`
	Temperature string `json:"temperature,omitempty"`
	Volume      string `json:"volume,omitempty"`
}

// StatisticsRequest is a recorder/statistics_during_period query.
type StatisticsRequest struct {
	Start        time.Time
	End          time.Time // zero means open ended
	StatisticIDs []string
	Period       Period
	Units        UnitConfiguration
	Types        []StatisticType
}

// StatisticSumGrowth returns the sum accumulated over the samples: the last
// sum minus the first. Fewer than two samples or a missing final sum yield no
// growth; a missing first sum counts as zero.
func StatisticSumGrowth(values []StatisticValue) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	end := values[len(values)-1].Sum
	if end == nil {
		return 0, false
	}
	start := values[0].Sum
	if start == nil {
		return *end, true
	}
	return *end - *start, true
}

// SumGrowth totals the growth of the given statistics. The second result is
// false when none of them contributed.
func (s Statistics) SumGrowth(statIDs []string) (float64, bool) {
	var (
		total float64
		found bool
	)
	for _, id := range statIDs {
		values, ok := s[id]
		if !ok {
			continue
		}
		growth, ok := StatisticSumGrowth(values)
		if !ok {
			continue
		}
		total += growth
		found = true
	}
	return total, found
}

// SumGrowthOrZero is SumGrowth with missing data counted as zero.
func (s Statistics) SumGrowthOrZero(statIDs []string) float64 {
	total, _ := s.SumGrowth(statIDs)
	return total
}

// Merge returns a new snapshot holding the series of every argument; later
// arguments win on duplicate ids.
func Merge(snapshots ...Statistics) Statistics {
	merged := make(Statistics)
	for _, snapshot := range snapshots {
		for id, values := range snapshot {
			merged[id] = values
		}
	}
	return merged
}

// PadLeadingZero prepends a zero sample at from to every series whose first
// sample starts after from, so the first hour of the window counts fully.
func (s Statistics) PadLeadingZero(from time.Time) {
	zero := 0.0
	for id, values := range s {
		if len(values) == 0 || !values[0].Start.After(from) {
			continue
		}
		pad := values[0]
		pad.Start = At(from)
		pad.End = At(from)
		sum, state := zero, zero
		pad.Sum = &sum
		pad.State = &state
		s[id] = append([]StatisticValue{pad}, values...)
	}
}
