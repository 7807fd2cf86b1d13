package energy

import "time"

// BucketStart returns the start of the period bucket holding t, in t's location.
// Weeks start on Monday.
func BucketStart(t time.Time, period Period) time.Time {
	switch period {
	case Period5Minute:
		return t.Truncate(5 * time.Minute)
	case PeriodHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case PeriodDay:
		return StartOfDay(t)
	case PeriodWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return StartOfDay(t).AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

// bucketEnd returns the start of the bucket after the one starting at start.
func bucketEnd(start time.Time, period Period) time.Time {
	switch period {
	case Period5Minute:
		return start.Add(5 * time.Minute)
	case PeriodHour:
		return start.Add(time.Hour)
	case PeriodDay:
		return start.AddDate(0, 0, 1)
	case PeriodWeek:
		return start.AddDate(0, 0, 7)
	case PeriodMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Resample folds samples ordered by start into period buckets. Each bucket
// keeps the sum and state of its last sample, like the recorder does for
// long periods.
func Resample(values []StatisticValue, period Period, loc *time.Location) []StatisticValue {
	if len(values) == 0 {
		return values
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]StatisticValue, 0, len(values))
	for _, value := range values {
		start := BucketStart(value.Start.In(loc), period)
		if n := len(out); n > 0 && out[n-1].Start.Equal(start) {
			last := &out[n-1]
			if value.Sum != nil {
				last.Sum = value.Sum
			}
			if value.State != nil {
				last.State = value.State
			}
			last.LastReset = value.LastReset
			continue
		}
		bucket := value
		bucket.Start = At(start)
		bucket.End = At(bucketEnd(start, period))
		out = append(out, bucket)
	}
	return out
}
