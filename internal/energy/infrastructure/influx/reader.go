// Package influx reads energy statistics from the bucket written by the Home
// Assistant InfluxDB integration.
package influx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	energy "energy-gauge/internal/energy/domain"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const metadataLookback = 30 * 24 * time.Hour

// Config selects the bucket.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// StatisticsReader serves statistics from meter readings stored in InfluxDB.
// The integration stores one measurement per unit with domain and entity_id
// tags, so a statistic's sum is the last meter reading of each window.
type StatisticsReader struct {
	client   influxdb2.Client
	query    api.QueryAPI
	bucket   string
	location *time.Location
	now      func() time.Time
}

// NewStatisticsReader constructs a reader. Buckets are aggregated in loc.
func NewStatisticsReader(cfg Config, loc *time.Location) (*StatisticsReader, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("influx: url and bucket required")
	}
	if loc == nil {
		loc = time.Local
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &StatisticsReader{
		client:   client,
		query:    client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		location: loc,
		now:      time.Now,
	}, nil
}

// Close releases the client.
func (r *StatisticsReader) Close() {
	r.client.Close()
}

type reading struct {
	statisticID string
	unit        string
	at          time.Time
	value       float64
}

// FetchStatistics returns one sample per window holding the last reading.
func (r *StatisticsReader) FetchStatistics(ctx context.Context, req energy.StatisticsRequest) (energy.Statistics, error) {
	if len(req.StatisticIDs) == 0 {
		return energy.Statistics{}, nil
	}
	end := req.End
	if end.IsZero() {
		end = r.now()
	}
	every := "1h"
	step := time.Hour
	if req.Period == energy.Period5Minute {
		every = "5m"
		step = 5 * time.Minute
	}
	readings, err := r.run(ctx, r.prepareQuery(req.Start, end, req.StatisticIDs, fmt.Sprintf("|> aggregateWindow(every: %s, fn: last, createEmpty: false, timeSrc: \"_start\")", every)))
	if err != nil {
		return nil, err
	}
	return collect(readings, req, step, r.location), nil
}

// GetStatisticMetadata derives metadata from the latest reading of each id.
func (r *StatisticsReader) GetStatisticMetadata(ctx context.Context, statisticIDs []string) ([]energy.StatisticMetadata, error) {
	if len(statisticIDs) == 0 {
		return nil, nil
	}
	now := r.now()
	readings, err := r.run(ctx, r.prepareQuery(now.Add(-metadataLookback), now, statisticIDs, "|> last()"))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(readings))
	out := make([]energy.StatisticMetadata, 0, len(readings))
	for _, rd := range readings {
		if seen[rd.statisticID] {
			continue
		}
		seen[rd.statisticID] = true
		unit := rd.unit
		meta := energy.StatisticMetadata{
			StatisticID:                 rd.statisticID,
			Source:                      "influxdb",
			StatisticsUnitOfMeasurement: &unit,
			HasSum:                      true,
		}
		if _, ok := energy.ConvertUnit(1, unit, "kWh"); ok {
			class := "energy"
			meta.UnitClass = &class
		} else if _, ok := energy.ConvertUnit(1, unit, "m³"); ok {
			class := "volume"
			meta.UnitClass = &class
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatisticID < out[j].StatisticID })
	return out, nil
}

func (r *StatisticsReader) run(ctx context.Context, q string) ([]reading, error) {
	result, err := r.query.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("influx: query: %w", err)
	}
	defer result.Close()

	var readings []reading
	for result.Next() {
		record := result.Record()
		value, ok := toFloat(record.Value())
		if !ok {
			continue
		}
		domain, _ := record.ValueByKey("domain").(string)
		entity, _ := record.ValueByKey("entity_id").(string)
		readings = append(readings, reading{
			statisticID: domain + "." + entity,
			unit:        record.Measurement(),
			at:          record.Time(),
			value:       value,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("influx: read result: %w", err)
	}
	return readings, nil
}

func (r *StatisticsReader) prepareQuery(start, stop time.Time, statisticIDs []string, aggregate string) string {
	return fmt.Sprintf(`
from(bucket: "%s")
|> range(start: %s, stop: %s)
|> filter(fn: (r) => r["_field"] == "value")
|> filter(fn: (r) => %s)
%s
`, r.bucket, start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339), entityFilter(statisticIDs), aggregate)
}

func entityFilter(statisticIDs []string) string {
	clauses := make([]string, 0, len(statisticIDs))
	for _, id := range statisticIDs {
		domain, entity, ok := strings.Cut(id, ".")
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf(`(r["domain"] == "%s" and r["entity_id"] == "%s")`, domain, entity))
	}
	if len(clauses) == 0 {
		return "false"
	}
	return strings.Join(clauses, " or ")
}

func collect(readings []reading, req energy.StatisticsRequest, step time.Duration, loc *time.Location) energy.Statistics {
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].at.Before(readings[j].at) })
	out := make(energy.Statistics)
	for _, rd := range readings {
		value := rd.value
		if converted, ok := energy.ConvertUnit(value, rd.unit, energy.TargetUnit(rd.unit, req.Units)); ok {
			value = converted
		}
		sum, state := value, value
		start := rd.at.In(loc)
		out[rd.statisticID] = append(out[rd.statisticID], energy.StatisticValue{
			Start: energy.At(start),
			End:   energy.At(start.Add(step)),
			Sum:   &sum,
			State: &state,
		})
	}
	switch req.Period {
	case energy.PeriodDay, energy.PeriodWeek, energy.PeriodMonth:
		for id, values := range out {
			out[id] = energy.Resample(values, req.Period, loc)
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	default:
		return 0, false
	}
}
