package hass

import (
	"context"
	"time"

	energy "energy-gauge/internal/energy/domain"
)

// Commands used by the energy collection.
const (
	CommandGetPrefs           = "energy/get_prefs"
	CommandSavePrefs          = "energy/save_prefs"
	CommandEnergyInfo         = "energy/info"
	CommandFossilConsumption  = "energy/fossil_energy_consumption"
	CommandStatisticsDuring   = "recorder/statistics_during_period"
	CommandStatisticsMetadata = "recorder/get_statistics_metadata"
	CommandConfigEntries      = "config_entries/get"
	CommandGetConfig          = "get_config"
	CommandEntityRegistryList = "config/entity_registry/list"
	CommandGetStates          = "get_states"
)

// GetPreferences returns the energy dashboard preferences. Preferences that
// were never saved yield a not_found ResultError.
func (c *Client) GetPreferences(ctx context.Context) (energy.Preferences, error) {
	var prefs energy.Preferences
	err := c.Call(ctx, CommandGetPrefs, nil, &prefs)
	return prefs, err
}

// SavePreferences stores prefs and returns what the host saved.
func (c *Client) SavePreferences(ctx context.Context, prefs energy.Preferences) (energy.Preferences, error) {
	var saved energy.Preferences
	err := c.Call(ctx, CommandSavePrefs, prefs, &saved)
	return saved, err
}

// GetInfo returns cost sensors and solar forecast domains.
func (c *Client) GetInfo(ctx context.Context) (energy.Info, error) {
	var info energy.Info
	err := c.Call(ctx, CommandEnergyInfo, nil, &info)
	return info, err
}

// GetConfigEntries lists the config entries of an integration domain.
func (c *Client) GetConfigEntries(ctx context.Context, domain string) ([]energy.ConfigEntry, error) {
	var entries []energy.ConfigEntry
	err := c.Call(ctx, CommandConfigEntries, map[string]string{"domain": domain}, &entries)
	return entries, err
}

type registryEntry struct {
	EntityID string `json:"entity_id"`
	Platform string `json:"platform"`
}

type entityState struct {
	EntityID   string `json:"entity_id"`
	Attributes struct {
		UnitOfMeasurement string `json:"unit_of_measurement"`
	} `json:"attributes"`
}

// FindEntity returns the first registry entity of platform whose current
// state is measured in unit.
func (c *Client) FindEntity(ctx context.Context, platform, unit string) (string, bool, error) {
	var entries []registryEntry
	if err := c.Call(ctx, CommandEntityRegistryList, nil, &entries); err != nil {
		return "", false, err
	}
	var states []entityState
	if err := c.Call(ctx, CommandGetStates, nil, &states); err != nil {
		return "", false, err
	}
	units := make(map[string]string, len(states))
	for _, state := range states {
		units[state.EntityID] = state.Attributes.UnitOfMeasurement
	}
	for _, entry := range entries {
		if entry.Platform != platform {
			continue
		}
		if got, ok := units[entry.EntityID]; ok && got == unit {
			return entry.EntityID, true, nil
		}
	}
	return "", false, nil
}

type fossilParams struct {
	StartTime          string        `json:"start_time"`
	EndTime            string        `json:"end_time,omitempty"`
	EnergyStatisticIDs []string      `json:"energy_statistic_ids"`
	CO2StatisticID     string        `json:"co2_statistic_id"`
	Period             energy.Period `json:"period"`
}

// GetFossilEnergyConsumption returns the fossil share of grid consumption per period.
func (c *Client) GetFossilEnergyConsumption(ctx context.Context, req energy.FossilRequest) (energy.FossilConsumption, error) {
	params := fossilParams{
		StartTime:          isoTime(req.Start),
		EndTime:            isoTime(req.End),
		EnergyStatisticIDs: req.EnergyStatisticIDs,
		CO2StatisticID:     req.CO2StatisticID,
		Period:             req.Period,
	}
	var out energy.FossilConsumption
	err := c.Call(ctx, CommandFossilConsumption, params, &out)
	return out, err
}

// LengthUnit returns the host unit system's length unit ("km" or "mi").
func (c *Client) LengthUnit(ctx context.Context) (string, error) {
	var config struct {
		UnitSystem struct {
			Length string `json:"length"`
		} `json:"unit_system"`
	}
	err := c.Call(ctx, CommandGetConfig, nil, &config)
	return config.UnitSystem.Length, err
}

type statisticsParams struct {
	StartTime    string                   `json:"start_time"`
	EndTime      string                   `json:"end_time,omitempty"`
	StatisticIDs []string                 `json:"statistic_ids,omitempty"`
	Period       energy.Period            `json:"period"`
	Units        energy.UnitConfiguration `json:"units"`
	Types        []energy.StatisticType   `json:"types,omitempty"`
}

// FetchStatistics runs recorder/statistics_during_period.
func (c *Client) FetchStatistics(ctx context.Context, req energy.StatisticsRequest) (energy.Statistics, error) {
	params := statisticsParams{
		StartTime:    isoTime(req.Start),
		EndTime:      isoTime(req.End),
		StatisticIDs: req.StatisticIDs,
		Period:       req.Period,
		Units:        req.Units,
		Types:        req.Types,
	}
	stats := make(energy.Statistics)
	err := c.Call(ctx, CommandStatisticsDuring, params, &stats)
	return stats, err
}

// GetStatisticMetadata returns metadata for the given statistic ids.
func (c *Client) GetStatisticMetadata(ctx context.Context, statisticIDs []string) ([]energy.StatisticMetadata, error) {
	var out []energy.StatisticMetadata
	err := c.Call(ctx, CommandStatisticsMetadata, map[string][]string{"statistic_ids": statisticIDs}, &out)
	return out, err
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
