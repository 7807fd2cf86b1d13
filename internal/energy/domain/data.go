package energy

import "time"

// ConfigEntry is a host integration config entry.
type ConfigEntry struct {
	EntryID                string  `json:"entry_id"`
	Domain                 string  `json:"domain"`
	Title                  string  `json:"title"`
	Source                 string  `json:"source"`
	State                  string  `json:"state"`
	SupportsOptions        bool    `json:"supports_options"`
	SupportsRemoveDevice   bool    `json:"supports_remove_device"`
	SupportsUnload         bool    `json:"supports_unload"`
	PrefDisableNewEntities bool    `json:"pref_disable_new_entities"`
	PrefDisablePolling     bool    `json:"pref_disable_polling"`
	DisabledBy             *string `json:"disabled_by"`
	Reason                 *string `json:"reason"`
}

// FossilConsumption maps a period start (as sent by the host) to the fossil
// share of grid consumption.
type FossilConsumption map[string]float64

// FossilRequest is an energy/fossil_energy_consumption query.
type FossilRequest struct {
	Start              time.Time
	End                time.Time
	EnergyStatisticIDs []string
	CO2StatisticID     string
	Period             Period
}

// Data is one snapshot delivered to collection subscribers.
type Data struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"` // zero when open ended
	StartCompare time.Time `json:"start_compare,omitempty"`
	EndCompare   time.Time `json:"end_compare,omitempty"`

	Prefs         Preferences                  `json:"prefs"`
	Info          Info                         `json:"info"`
	Stats         Statistics                   `json:"stats"`
	StatsMetadata map[string]StatisticMetadata `json:"stats_metadata"`
	StatsCompare  Statistics                   `json:"stats_compare,omitempty"`

	CO2SignalConfigEntry           *ConfigEntry      `json:"co2signal_config_entry,omitempty"`
	CO2SignalEntity                string            `json:"co2signal_entity,omitempty"`
	FossilEnergyConsumption        FossilConsumption `json:"fossil_energy_consumption,omitempty"`
	FossilEnergyConsumptionCompare FossilConsumption `json:"fossil_energy_consumption_compare,omitempty"`
}

// Units returns the energy and water unit configuration for a host length unit.
func Units(lengthUnit string) (UnitConfiguration, UnitConfiguration) {
	metric := lengthUnit == "km"
	energyUnits := UnitConfiguration{Energy: "kWh", Volume: "ft³"}
	waterUnits := UnitConfiguration{Volume: "gal"}
	if metric {
		energyUnits.Volume = "m³"
		waterUnits.Volume = "L"
	}
	return energyUnits, waterUnits
}

// GasUnitClass returns the unit class ("energy" or "volume") of the first gas
// source with known metadata, skipping excludeSource.
func GasUnitClass(prefs Preferences, metadata map[string]StatisticMetadata, excludeSource string) string {
	for _, gas := range prefs.ByType().Gas {
		if excludeSource != "" && excludeSource == gas.StatEnergyFrom {
			continue
		}
		meta, ok := metadata[gas.StatEnergyFrom]
		if !ok || meta.UnitClass == nil {
			continue
		}
		if class := *meta.UnitClass; class == "energy" || class == "volume" {
			return class
		}
	}
	return ""
}

// GasUnit returns the display unit for gas, or "" when unknown.
func GasUnit(prefs Preferences, metadata map[string]StatisticMetadata, lengthUnit string) string {
	switch GasUnitClass(prefs, metadata, "") {
	case "energy":
		return "kWh"
	case "volume":
		if lengthUnit == "km" {
			return "m³"
		}
		return "ft³"
	default:
		return ""
	}
}

// WaterUnit returns the display unit for water.
func WaterUnit(lengthUnit string) string {
	if lengthUnit == "km" {
		return "L"
	}
	return "gal"
}
