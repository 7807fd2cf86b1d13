package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	energy "energy-gauge/internal/energy/domain"
)

const (
	defaultStatisticsTable = "statistics"
	shortTermTable         = "statistics_short_term"
	defaultMetaTable       = "statistics_meta"
)

// RecorderStatisticsReader reads long-term statistics straight from a Home
// Assistant recorder database.
type RecorderStatisticsReader struct {
	db         *sql.DB
	statistics string
	meta       string
	location   *time.Location
}

// ReaderOption configures the reader.
type ReaderOption func(*RecorderStatisticsReader)

// WithLocation sets the zone used for day, week and month buckets.
func WithLocation(loc *time.Location) ReaderOption {
	return func(r *RecorderStatisticsReader) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithTables overrides the table names.
func WithTables(statistics, meta string) ReaderOption {
	return func(r *RecorderStatisticsReader) {
		if statistics != "" {
			r.statistics = statistics
		}
		if meta != "" {
			r.meta = meta
		}
	}
}

// NewRecorderStatisticsReader constructs a reader.
func NewRecorderStatisticsReader(db *sql.DB, opts ...ReaderOption) (*RecorderStatisticsReader, error) {
	if db == nil {
		return nil, errors.New("recorder: nil db")
	}
	reader := &RecorderStatisticsReader{
		db:         db,
		statistics: defaultStatisticsTable,
		meta:       defaultMetaTable,
		location:   time.Local,
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader, nil
}

// FetchStatistics returns the samples of the requested statistics. Periods
// longer than an hour are folded from hourly rows.
func (r *RecorderStatisticsReader) FetchStatistics(ctx context.Context, req energy.StatisticsRequest) (energy.Statistics, error) {
	out := make(energy.Statistics)
	if len(req.StatisticIDs) == 0 {
		return out, nil
	}
	table := r.statistics
	if req.Period == energy.Period5Minute {
		table = shortTermTable
	}

	args := []any{float64(req.Start.UnixMilli()) / 1000}
	query := fmt.Sprintf(`
SELECT
	m.statistic_id,
	m.unit_of_measurement,
	s.start_ts,
	s.last_reset_ts,
	s.state,
	s.sum,
	s.mean,
	s.min,
	s.max
FROM %s s
JOIN %s m ON m.id = s.metadata_id
WHERE s.start_ts >= $1`, table, r.meta)
	if !req.End.IsZero() {
		args = append(args, float64(req.End.UnixMilli())/1000)
		query += fmt.Sprintf(" AND s.start_ts < $%d", len(args))
	}
	query += " AND m.statistic_id IN (" + placeholders(len(args)+1, len(req.StatisticIDs)) + ")"
	for _, id := range req.StatisticIDs {
		args = append(args, id)
	}
	query += " ORDER BY m.statistic_id, s.start_ts"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	step := time.Hour
	if table == shortTermTable {
		step = 5 * time.Minute
	}
	for rows.Next() {
		var (
			statisticID string
			unit        sql.NullString
			startTS     float64
			lastReset   sql.NullFloat64
			state       sql.NullFloat64
			sum         sql.NullFloat64
			mean        sql.NullFloat64
			minValue    sql.NullFloat64
			maxValue    sql.NullFloat64
		)
		if err := rows.Scan(&statisticID, &unit, &startTS, &lastReset, &state, &sum, &mean, &minValue, &maxValue); err != nil {
			return nil, err
		}
		start := fromEpoch(startTS).In(r.location)
		convert := converter(unit.String, req.Units)
		value := energy.StatisticValue{
			Start: energy.At(start),
			End:   energy.At(start.Add(step)),
			State: convert(state),
			Sum:   convert(sum),
			Mean:  convert(mean),
			Min:   convert(minValue),
			Max:   convert(maxValue),
		}
		if lastReset.Valid {
			reset := energy.At(fromEpoch(lastReset.Float64))
			value.LastReset = &reset
		}
		out[statisticID] = append(out[statisticID], value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if req.Period == energy.PeriodDay || req.Period == energy.PeriodWeek || req.Period == energy.PeriodMonth {
		for id, values := range out {
			out[id] = energy.Resample(values, req.Period, r.location)
		}
	}
	return out, nil
}

// GetStatisticMetadata returns metadata rows for the given ids.
func (r *RecorderStatisticsReader) GetStatisticMetadata(ctx context.Context, statisticIDs []string) ([]energy.StatisticMetadata, error) {
	if len(statisticIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT
	statistic_id,
	source,
	unit_of_measurement,
	name,
	has_mean,
	has_sum
FROM %s
WHERE statistic_id IN (%s)
ORDER BY statistic_id`, r.meta, placeholders(1, len(statisticIDs)))
	args := make([]any, 0, len(statisticIDs))
	for _, id := range statisticIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []energy.StatisticMetadata
	for rows.Next() {
		var (
			meta    energy.StatisticMetadata
			unit    sql.NullString
			name    sql.NullString
			hasMean sql.NullBool
		)
		if err := rows.Scan(&meta.StatisticID, &meta.Source, &unit, &name, &hasMean, &meta.HasSum); err != nil {
			return nil, err
		}
		meta.HasMean = hasMean.Bool
		if unit.Valid {
			meta.StatisticsUnitOfMeasurement = &unit.String
			if class := unitClass(unit.String); class != "" {
				meta.UnitClass = &class
			}
		}
		if name.Valid {
			meta.Name = &name.String
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

func placeholders(first, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", first+i)
	}
	return strings.Join(parts, ", ")
}

func fromEpoch(seconds float64) time.Time {
	return time.UnixMilli(int64(seconds * 1000))
}

func converter(unit string, units energy.UnitConfiguration) func(sql.NullFloat64) *float64 {
	target := energy.TargetUnit(unit, units)
	return func(v sql.NullFloat64) *float64 {
		if !v.Valid {
			return nil
		}
		value := v.Float64
		if converted, ok := energy.ConvertUnit(value, unit, target); ok {
			value = converted
		}
		return &value
	}
}

func unitClass(unit string) string {
	if _, ok := energy.ConvertUnit(1, unit, "kWh"); ok {
		return "energy"
	}
	if _, ok := energy.ConvertUnit(1, unit, "m³"); ok {
		return "volume"
	}
	return ""
}
