package energy

// SourceType tags an energy source preference.
type SourceType string

const (
	SourceGrid    SourceType = "grid"
	SourceSolar   SourceType = "solar"
	SourceBattery SourceType = "battery"
	SourceGas     SourceType = "gas"
	SourceWater   SourceType = "water"
)

// Valid returns true when the type is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceGrid, SourceSolar, SourceBattery, SourceGas, SourceWater:
		return true
	default:
		return false
	}
}

// Source is one configured energy source. Concrete types are GridSource,
// SolarSource, BatterySource, GasSource and WaterSource.
type Source interface {
	Type() SourceType
}

// FlowFromGrid is an import meter of the grid source.
type FlowFromGrid struct {
	StatEnergyFrom    string   `json:"stat_energy_from"`
	StatCost          *string  `json:"stat_cost"`
	EntityEnergyPrice *string  `json:"entity_energy_price"`
	NumberEnergyPrice *float64 `json:"number_energy_price"`
}

// FlowToGrid is an export meter of the grid source.
type FlowToGrid struct {
	StatEnergyTo      string   `json:"stat_energy_to"`
	StatCompensation  *string  `json:"stat_compensation"`
	EntityEnergyPrice *string  `json:"entity_energy_price"`
	NumberEnergyPrice *float64 `json:"number_energy_price"`
}

// GridSource groups the import and export meters of the grid connection.
type GridSource struct {
	FlowFrom          []FlowFromGrid `json:"flow_from"`
	FlowTo            []FlowToGrid   `json:"flow_to"`
	CostAdjustmentDay float64        `json:"cost_adjustment_day"`
}

// SolarSource is a solar production meter.
type SolarSource struct {
	StatEnergyFrom           string   `json:"stat_energy_from"`
	ConfigEntrySolarForecast []string `json:"config_entry_solar_forecast"`
}

// BatterySource carries the discharge (from) and charge (to) meters.
type BatterySource struct {
	StatEnergyFrom string `json:"stat_energy_from"`
	StatEnergyTo   string `json:"stat_energy_to"`
}

// GasSource is a gas consumption meter, measured in energy or volume.
type GasSource struct {
	StatEnergyFrom    string   `json:"stat_energy_from"`
	StatCost          *string  `json:"stat_cost"`
	EntityEnergyPrice *string  `json:"entity_energy_price"`
	NumberEnergyPrice *float64 `json:"number_energy_price"`
	UnitOfMeasurement *string  `json:"unit_of_measurement,omitempty"`
}

// WaterSource is a water consumption meter.
type WaterSource struct {
	StatEnergyFrom    string   `json:"stat_energy_from"`
	StatCost          *string  `json:"stat_cost"`
	EntityEnergyPrice *string  `json:"entity_energy_price"`
	NumberEnergyPrice *float64 `json:"number_energy_price"`
	UnitOfMeasurement *string  `json:"unit_of_measurement,omitempty"`
}

func (GridSource) Type() SourceType    { return SourceGrid }
func (SolarSource) Type() SourceType   { return SourceSolar }
func (BatterySource) Type() SourceType { return SourceBattery }
func (GasSource) Type() SourceType     { return SourceGas }
func (WaterSource) Type() SourceType   { return SourceWater }

// SourcesByType holds sources grouped by their tag, in configuration order.
type SourcesByType struct {
	Grid    []GridSource
	Solar   []SolarSource
	Battery []BatterySource
	Gas     []GasSource
	Water   []WaterSource
}

// GroupSources groups sources by type.
func GroupSources(sources []Source) SourcesByType {
	var grouped SourcesByType
	for _, source := range sources {
		switch s := normalizeSource(source).(type) {
		case GridSource:
			grouped.Grid = append(grouped.Grid, s)
		case SolarSource:
			grouped.Solar = append(grouped.Solar, s)
		case BatterySource:
			grouped.Battery = append(grouped.Battery, s)
		case GasSource:
			grouped.Gas = append(grouped.Gas, s)
		case WaterSource:
			grouped.Water = append(grouped.Water, s)
		}
	}
	return grouped
}

// normalizeSource dereferences pointer sources so callers can switch on values.
func normalizeSource(source Source) Source {
	switch s := source.(type) {
	case *GridSource:
		if s != nil {
			return *s
		}
	case *SolarSource:
		if s != nil {
			return *s
		}
	case *BatterySource:
		if s != nil {
			return *s
		}
	case *GasSource:
		if s != nil {
			return *s
		}
	case *WaterSource:
		if s != nil {
			return *s
		}
	default:
		return source
	}
	return nil
}

// EmptyGridSource returns a grid source without flows, as the host creates it.
func EmptyGridSource() GridSource {
	return GridSource{FlowFrom: []FlowFromGrid{}, FlowTo: []FlowToGrid{}}
}
