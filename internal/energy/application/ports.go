package application

import (
	"context"
	"time"

	energy "energy-gauge/internal/energy/domain"
)

// HostSource is the host application's energy API.
type HostSource interface {
	GetPreferences(ctx context.Context) (energy.Preferences, error)
	SavePreferences(ctx context.Context, prefs energy.Preferences) (energy.Preferences, error)
	GetInfo(ctx context.Context) (energy.Info, error)
	GetConfigEntries(ctx context.Context, domain string) ([]energy.ConfigEntry, error)
	// FindEntity returns the first entity of platform whose state carries unit.
	FindEntity(ctx context.Context, platform, unit string) (string, bool, error)
	GetFossilEnergyConsumption(ctx context.Context, req energy.FossilRequest) (energy.FossilConsumption, error)
	LengthUnit(ctx context.Context) (string, error)
}

// StatisticsSource serves long-term statistics.
type StatisticsSource interface {
	FetchStatistics(ctx context.Context, req energy.StatisticsRequest) (energy.Statistics, error)
	GetStatisticMetadata(ctx context.Context, statisticIDs []string) ([]energy.StatisticMetadata, error)
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock provides time and timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}
