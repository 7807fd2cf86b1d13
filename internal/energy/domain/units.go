package energy

var energyFactors = map[string]float64{
	"Wh":  0.001,
	"kWh": 1,
	"MWh": 1000,
	"GJ":  277.77777777777777,
	"MJ":  0.2777777777777778,
}

var volumeFactors = map[string]float64{
	"L":   0.001,
	"m³":  1,
	"ft³": 0.028316846592,
	"gal": 0.003785411784,
	"CCF": 2.8316846592,
	"mL":  0.000001,
}

// ConvertUnit converts value between two energy or two volume units. The
// second result is false when the units are unknown or of different classes.
func ConvertUnit(value float64, from, to string) (float64, bool) {
	if from == to {
		return value, true
	}
	for _, factors := range []map[string]float64{energyFactors, volumeFactors} {
		fromFactor, okFrom := factors[from]
		toFactor, okTo := factors[to]
		if okFrom && okTo {
			return value * fromFactor / toFactor, true
		}
	}
	return 0, false
}

// TargetUnit picks the requested unit for a statistic stored in unit.
func TargetUnit(unit string, units UnitConfiguration) string {
	if _, ok := energyFactors[unit]; ok && units.Energy != "" {
		return units.Energy
	}
	if _, ok := volumeFactors[unit]; ok && units.Volume != "" {
		return units.Volume
	}
	return unit
}
