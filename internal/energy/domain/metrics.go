package energy

import "math"

// Gauge selects which ratio a card displays.
type Gauge string

const (
	GaugeAutarky         Gauge = "autarky"
	GaugeSelfConsumption Gauge = "self_consumption"
)

// Valid returns true for supported gauges.
func (g Gauge) Valid() bool {
	return g == GaugeAutarky || g == GaugeSelfConsumption
}

// Metrics are derived from one statistics snapshot. Values are kWh except the
// two percentages. Nothing is rounded or clamped beyond ConsumedSolar.
type Metrics struct {
	TotalSolarProduction      float64 `json:"total_solar_production"`
	ProductionReturnedToGrid  float64 `json:"production_returned_to_grid"`
	ConsumptionFromBattery    float64 `json:"consumption_from_battery"`
	ProductionToBattery       float64 `json:"production_to_battery"`
	ConsumptionFromGrid       float64 `json:"consumption_from_grid"`
	TotalConsumption          float64 `json:"total_consumption"`
	SelfConsumption           float64 `json:"self_consumption"`
	Autarky                   float64 `json:"autarky"`
	ConsumedSolar             float64 `json:"consumed_solar"`
	SelfConsumptionPercentage float64 `json:"self_consumption_percentage"`
}

// ComputeMetrics derives the energy balance for the configured sources.
// It returns ErrNotApplicable when no grid source, or neither a solar nor a
// battery source, is configured.
func ComputeMetrics(stats Statistics, sources []Source) (Metrics, error) {
	types := GroupSources(sources)
	if len(types.Grid) == 0 || (len(types.Solar) == 0 && len(types.Battery) == 0) {
		return Metrics{}, ErrNotApplicable
	}

	var (
		solarFrom   []string
		batteryFrom []string
		batteryTo   []string
		gridFrom    []string
		gridTo      []string
	)
	for _, solar := range types.Solar {
		solarFrom = append(solarFrom, solar.StatEnergyFrom)
	}
	for _, battery := range types.Battery {
		batteryFrom = append(batteryFrom, battery.StatEnergyFrom)
		batteryTo = append(batteryTo, battery.StatEnergyTo)
	}
	for _, grid := range types.Grid {
		for _, flow := range grid.FlowFrom {
			gridFrom = append(gridFrom, flow.StatEnergyFrom)
		}
		for _, flow := range grid.FlowTo {
			gridTo = append(gridTo, flow.StatEnergyTo)
		}
	}

	var m Metrics
	m.TotalSolarProduction = stats.SumGrowthOrZero(solarFrom)
	m.ProductionReturnedToGrid = stats.SumGrowthOrZero(gridTo)
	m.ConsumptionFromBattery = stats.SumGrowthOrZero(batteryFrom)
	m.ProductionToBattery = stats.SumGrowthOrZero(batteryTo)
	m.ConsumptionFromGrid = stats.SumGrowthOrZero(gridFrom)

	m.TotalConsumption = m.ConsumptionFromBattery + m.ConsumptionFromGrid + m.TotalSolarProduction -
		m.ProductionReturnedToGrid - m.ProductionToBattery
	m.SelfConsumption = m.TotalConsumption - m.ConsumptionFromGrid
	if m.TotalConsumption > 0 {
		m.Autarky = m.SelfConsumption / m.TotalConsumption * 100
	}

	m.ConsumedSolar = math.Max(0, m.TotalSolarProduction-m.ProductionReturnedToGrid)
	if m.TotalSolarProduction > 0 {
		m.SelfConsumptionPercentage = m.ConsumedSolar / m.TotalSolarProduction * 100
	}
	return m, nil
}

// Value returns the percentage shown by the given gauge.
func (m Metrics) Value(g Gauge) (float64, error) {
	switch g {
	case GaugeAutarky:
		return m.Autarky, nil
	case GaugeSelfConsumption:
		return m.SelfConsumptionPercentage, nil
	default:
		return 0, ErrUnknownGauge
	}
}
