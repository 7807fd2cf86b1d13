package energy

import (
	"encoding/json"
	"fmt"
)

// DeviceConsumption is an individual device meter. The value is ever increasing.
type DeviceConsumption struct {
	StatConsumption string `json:"stat_consumption"`
}

// Preferences are the host's energy dashboard settings.
type Preferences struct {
	Sources           []Source
	DeviceConsumption []DeviceConsumption
}

// Info is the host's energy/info response.
type Info struct {
	CostSensors          map[string]string `json:"cost_sensors"`
	SolarForecastDomains []string          `json:"solar_forecast_domains"`
}

type preferencesWire struct {
	EnergySources     []json.RawMessage   `json:"energy_sources"`
	DeviceConsumption []DeviceConsumption `json:"device_consumption"`
}

// UnmarshalJSON decodes energy_sources by their type tag.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	var wire preferencesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	sources := make([]Source, 0, len(wire.EnergySources))
	for i, raw := range wire.EnergySources {
		source, err := decodeSource(raw)
		if err != nil {
			return fmt.Errorf("energy_sources[%d]: %w", i, err)
		}
		sources = append(sources, source)
	}
	p.Sources = sources
	p.DeviceConsumption = wire.DeviceConsumption
	return nil
}

// MarshalJSON encodes sources with their type tag inlined.
func (p Preferences) MarshalJSON() ([]byte, error) {
	sources := make([]any, 0, len(p.Sources))
	for _, source := range p.Sources {
		tagged, err := tagSource(normalizeSource(source))
		if err != nil {
			return nil, err
		}
		sources = append(sources, tagged)
	}
	devices := p.DeviceConsumption
	if devices == nil {
		devices = []DeviceConsumption{}
	}
	return json.Marshal(struct {
		EnergySources     []any               `json:"energy_sources"`
		DeviceConsumption []DeviceConsumption `json:"device_consumption"`
	}{EnergySources: sources, DeviceConsumption: devices})
}

func decodeSource(raw json.RawMessage) (Source, error) {
	var head struct {
		Type SourceType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case SourceGrid:
		var s GridSource
		err := json.Unmarshal(raw, &s)
		return s, err
	case SourceSolar:
		var s SolarSource
		err := json.Unmarshal(raw, &s)
		return s, err
	case SourceBattery:
		var s BatterySource
		err := json.Unmarshal(raw, &s)
		return s, err
	case SourceGas:
		var s GasSource
		err := json.Unmarshal(raw, &s)
		return s, err
	case SourceWater:
		var s WaterSource
		err := json.Unmarshal(raw, &s)
		return s, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, head.Type)
	}
}

func tagSource(source Source) (any, error) {
	switch s := source.(type) {
	case GridSource:
		return struct {
			Type SourceType `json:"type"`
			GridSource
		}{SourceGrid, s}, nil
	case SolarSource:
		return struct {
			Type SourceType `json:"type"`
			SolarSource
		}{SourceSolar, s}, nil
	case BatterySource:
		return struct {
			Type SourceType `json:"type"`
			BatterySource
		}{SourceBattery, s}, nil
	case GasSource:
		return struct {
			Type SourceType `json:"type"`
			GasSource
		}{SourceGas, s}, nil
	case WaterSource:
		return struct {
			Type SourceType `json:"type"`
			WaterSource
		}{SourceWater, s}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownSourceType, source)
	}
}

// ByType groups the preference sources.
func (p Preferences) ByType() SourcesByType {
	return GroupSources(p.Sources)
}

// ReferencedStatisticIDs lists every statistic id the preferences point at,
// including cost statistics. When includeTypes is non-empty only those source
// types are considered. Configuration order is preserved.
func ReferencedStatisticIDs(prefs Preferences, info Info, includeTypes ...SourceType) []string {
	include := func(t SourceType) bool {
		if len(includeTypes) == 0 {
			return true
		}
		for _, candidate := range includeTypes {
			if candidate == t {
				return true
			}
		}
		return false
	}
	costSensor := func(statID string) string {
		if info.CostSensors == nil {
			return ""
		}
		return info.CostSensors[statID]
	}

	var ids []string
	for _, source := range prefs.Sources {
		source = normalizeSource(source)
		if source == nil || !include(source.Type()) {
			continue
		}
		switch s := source.(type) {
		case SolarSource:
			ids = append(ids, s.StatEnergyFrom)
		case GasSource:
			ids = appendCostIDs(ids, s.StatEnergyFrom, s.StatCost, costSensor(s.StatEnergyFrom))
		case WaterSource:
			ids = appendCostIDs(ids, s.StatEnergyFrom, s.StatCost, costSensor(s.StatEnergyFrom))
		case BatterySource:
			ids = append(ids, s.StatEnergyFrom, s.StatEnergyTo)
		case GridSource:
			for _, flow := range s.FlowFrom {
				ids = appendCostIDs(ids, flow.StatEnergyFrom, flow.StatCost, costSensor(flow.StatEnergyFrom))
			}
			for _, flow := range s.FlowTo {
				ids = appendCostIDs(ids, flow.StatEnergyTo, flow.StatCompensation, costSensor(flow.StatEnergyTo))
			}
		}
	}
	return ids
}

func appendCostIDs(ids []string, statID string, cost *string, sensor string) []string {
	ids = append(ids, statID)
	if cost != nil && *cost != "" {
		ids = append(ids, *cost)
	}
	if sensor != "" {
		ids = append(ids, sensor)
	}
	return ids
}

// GridConsumptionStatIDs returns the grid import statistics, used for fossil
// energy consumption queries.
func GridConsumptionStatIDs(prefs Preferences) []string {
	var ids []string
	for _, grid := range prefs.ByType().Grid {
		for _, flow := range grid.FlowFrom {
			ids = append(ids, flow.StatEnergyFrom)
		}
	}
	return ids
}
