package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	energy "energy-gauge/internal/energy/domain"

	"golang.org/x/sync/errgroup"
)

const co2SignalDomain = "co2signal"

// Loader assembles energy snapshots from the host and a statistics source.
type Loader struct {
	host  HostSource
	stats StatisticsSource
	clock Clock
}

// LoaderOption customizes a loader.
type LoaderOption func(*Loader)

// WithLoaderClock assigns a clock.
func WithLoaderClock(clock Clock) LoaderOption {
	return func(l *Loader) {
		l.clock = clock
	}
}

// NewLoader constructs a loader. stats may be a different backend than host.
func NewLoader(host HostSource, stats StatisticsSource, opts ...LoaderOption) (*Loader, error) {
	if host == nil {
		return nil, errors.New("energy: nil host source")
	}
	if stats == nil {
		return nil, errors.New("energy: nil statistics source")
	}
	loader := &Loader{host: host, stats: stats, clock: systemClock{}}
	for _, opt := range opts {
		opt(loader)
	}
	return loader, nil
}

// Load fetches everything a gauge needs for [start, end]. A zero end means
// open ended. With compare set the preceding window is loaded as well.
func (l *Loader) Load(ctx context.Context, prefs energy.Preferences, start, end time.Time, compare bool) (energy.Data, error) {
	var (
		configEntries []energy.ConfigEntry
		info          energy.Info
		lengthUnit    string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		configEntries, err = l.host.GetConfigEntries(groupCtx, co2SignalDomain)
		return wrap("config entries", err)
	})
	group.Go(func() error {
		var err error
		info, err = l.host.GetInfo(groupCtx)
		return wrap("energy info", err)
	})
	group.Go(func() error {
		var err error
		lengthUnit, err = l.host.LengthUnit(groupCtx)
		return wrap("unit system", err)
	})
	if err := group.Wait(); err != nil {
		return energy.Data{}, err
	}

	data := energy.Data{Start: start, End: end, Prefs: prefs, Info: info}
	if len(configEntries) > 0 {
		entry := configEntries[0]
		data.CO2SignalConfigEntry = &entry
		entity, ok, err := l.host.FindEntity(ctx, co2SignalDomain, "%")
		if err != nil {
			return energy.Data{}, wrap("co2signal entity", err)
		}
		if ok {
			data.CO2SignalEntity = entity
		}
	}

	consumptionIDs := energy.GridConsumptionStatIDs(prefs)
	energyIDs := energy.ReferencedStatisticIDs(prefs, info, energy.SourceGrid, energy.SourceSolar, energy.SourceBattery, energy.SourceGas)
	waterIDs := energy.ReferencedStatisticIDs(prefs, info, energy.SourceWater)
	allIDs := append(append([]string(nil), energyIDs...), waterIDs...)

	until := end
	if until.IsZero() {
		until = l.clock.Now()
	}
	days := energy.DifferenceInDays(until, start)
	period := energy.PeriodFor(days)
	startMinHour := start.Add(-time.Hour)
	energyUnits, waterUnits := energy.Units(lengthUnit)

	if compare {
		data.StartCompare, data.EndCompare = energy.CompareWindow(start, days)
	}

	var (
		energyStats, waterStats               energy.Statistics
		energyStatsCompare, waterStatsCompare energy.Statistics
		metadata                              []energy.StatisticMetadata
	)
	group, groupCtx = errgroup.WithContext(ctx)
	fetch := func(target *energy.Statistics, from, to time.Time, ids []string, units energy.UnitConfiguration) {
		if len(ids) == 0 {
			return
		}
		group.Go(func() error {
			stats, err := l.stats.FetchStatistics(groupCtx, energy.StatisticsRequest{
				Start:        from,
				End:          to,
				StatisticIDs: ids,
				Period:       period,
				Units:        units,
				Types:        []energy.StatisticType{energy.StatisticSum},
			})
			*target = stats
			return wrap("statistics", err)
		})
	}
	fetch(&energyStats, startMinHour, end, energyIDs, energyUnits)
	fetch(&waterStats, startMinHour, end, waterIDs, waterUnits)
	if compare {
		compareFrom := data.StartCompare.Add(-time.Hour)
		fetch(&energyStatsCompare, compareFrom, data.EndCompare, energyIDs, energyUnits)
		fetch(&waterStatsCompare, compareFrom, data.EndCompare, waterIDs, waterUnits)
	}
	if len(allIDs) > 0 {
		group.Go(func() error {
			var err error
			metadata, err = l.stats.GetStatisticMetadata(groupCtx, allIDs)
			return wrap("statistics metadata", err)
		})
	}
	if data.CO2SignalEntity != "" {
		fossil := func(target *energy.FossilConsumption, from, to time.Time) {
			group.Go(func() error {
				consumption, err := l.host.GetFossilEnergyConsumption(groupCtx, energy.FossilRequest{
					Start:              from,
					End:                to,
					EnergyStatisticIDs: consumptionIDs,
					CO2StatisticID:     data.CO2SignalEntity,
					Period:             period,
				})
				*target = consumption
				return wrap("fossil energy consumption", err)
			})
		}
		fossil(&data.FossilEnergyConsumption, start, end)
		if compare {
			fossil(&data.FossilEnergyConsumptionCompare, data.StartCompare, data.EndCompare)
		}
	}
	if err := group.Wait(); err != nil {
		return energy.Data{}, err
	}

	data.Stats = energy.Merge(energyStats, waterStats)
	if compare {
		data.StatsCompare = energy.Merge(energyStatsCompare, waterStatsCompare)
	}
	data.StatsMetadata = make(map[string]energy.StatisticMetadata, len(metadata))
	for _, meta := range metadata {
		data.StatsMetadata[meta.StatisticID] = meta
	}
	data.Stats.PadLeadingZero(startMinHour)
	return data, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("energy: load %s: %w", what, err)
}
