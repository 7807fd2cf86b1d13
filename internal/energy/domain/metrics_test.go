package energy

import (
	"errors"
	"math"
	"testing"
	"time"
)

func series(sums ...float64) []StatisticValue {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := make([]StatisticValue, 0, len(sums))
	for i, sum := range sums {
		sum := sum
		start := base.Add(time.Duration(i) * time.Hour)
		values = append(values, StatisticValue{
			Start: At(start),
			End:   At(start.Add(time.Hour)),
			Sum:   &sum,
		})
	}
	return values
}

func strPtr(value string) *string { return &value }

func gridSolarSources() []Source {
	return []Source{
		GridSource{
			FlowFrom: []FlowFromGrid{{StatEnergyFrom: "sensor.grid_import"}},
			FlowTo:   []FlowToGrid{{StatEnergyTo: "sensor.grid_export"}},
		},
		SolarSource{StatEnergyFrom: "sensor.solar"},
	}
}

func TestComputeMetricsSolarWithoutBattery(t *testing.T) {
	stats := Statistics{
		"sensor.solar":       series(1000, 1040, 1100),
		"sensor.grid_export": series(10, 30),
		"sensor.grid_import": series(200, 220, 250),
	}

	m, err := ComputeMetrics(stats, gridSolarSources())
	if err != nil {
		t.Fatalf("compute metrics: %v", err)
	}
	if m.TotalSolarProduction != 100 {
		t.Fatalf("expected solar 100, got %v", m.TotalSolarProduction)
	}
	if m.ProductionReturnedToGrid != 20 {
		t.Fatalf("expected returned 20, got %v", m.ProductionReturnedToGrid)
	}
	if m.ConsumptionFromGrid != 50 {
		t.Fatalf("expected grid 50, got %v", m.ConsumptionFromGrid)
	}
	if m.TotalConsumption != 130 {
		t.Fatalf("expected total consumption 130, got %v", m.TotalConsumption)
	}
	if m.SelfConsumption != 80 {
		t.Fatalf("expected self consumption 80, got %v", m.SelfConsumption)
	}
	if math.Abs(m.Autarky-61.538461) > 1e-4 {
		t.Fatalf("expected autarky ~61.54, got %v", m.Autarky)
	}
	if m.SelfConsumptionPercentage != 80 {
		t.Fatalf("expected self consumption percentage 80, got %v", m.SelfConsumptionPercentage)
	}
}

func TestComputeMetricsWithBattery(t *testing.T) {
	sources := append(gridSolarSources(), BatterySource{
		StatEnergyFrom: "sensor.battery_out",
		StatEnergyTo:   "sensor.battery_in",
	})
	stats := Statistics{
		"sensor.solar":       series(0, 100),
		"sensor.grid_export": series(0, 10),
		"sensor.grid_import": series(0, 30),
		"sensor.battery_out": series(0, 25),
		"sensor.battery_in":  series(0, 40),
	}

	m, err := ComputeMetrics(stats, sources)
	if err != nil {
		t.Fatalf("compute metrics: %v", err)
	}
	// 25 + 30 + 100 - 10 - 40
	if m.TotalConsumption != 105 {
		t.Fatalf("expected total consumption 105, got %v", m.TotalConsumption)
	}
	if m.SelfConsumption != 75 {
		t.Fatalf("expected self consumption 75, got %v", m.SelfConsumption)
	}
	if want := 75.0 / 105.0 * 100; math.Abs(m.Autarky-want) > 1e-9 {
		t.Fatalf("expected autarky %v, got %v", want, m.Autarky)
	}
}

func TestComputeMetricsEmptySeriesAreZero(t *testing.T) {
	stats := Statistics{
		"sensor.solar":       {},
		"sensor.grid_import": nil,
	}
	m, err := ComputeMetrics(stats, gridSolarSources())
	if err != nil {
		t.Fatalf("compute metrics: %v", err)
	}
	if m != (Metrics{}) {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}

func TestComputeMetricsNoConsumptionAvoidsDivision(t *testing.T) {
	// Export larger than production leaves a negative total consumption.
	stats := Statistics{
		"sensor.solar":       series(0, 10),
		"sensor.grid_export": series(0, 30),
	}
	m, err := ComputeMetrics(stats, gridSolarSources())
	if err != nil {
		t.Fatalf("compute metrics: %v", err)
	}
	if m.TotalConsumption != -20 {
		t.Fatalf("expected negative total consumption preserved, got %v", m.TotalConsumption)
	}
	if m.Autarky != 0 || math.IsNaN(m.Autarky) {
		t.Fatalf("expected autarky 0, got %v", m.Autarky)
	}
	if m.ConsumedSolar != 0 {
		t.Fatalf("expected consumed solar clamped to 0, got %v", m.ConsumedSolar)
	}
	if m.SelfConsumptionPercentage != 0 {
		t.Fatalf("expected self consumption percentage 0, got %v", m.SelfConsumptionPercentage)
	}
}

func TestComputeMetricsNotApplicable(t *testing.T) {
	cases := map[string][]Source{
		"no grid":             {SolarSource{StatEnergyFrom: "sensor.solar"}},
		"no solar or battery": {EmptyGridSource(), GasSource{StatEnergyFrom: "sensor.gas"}},
		"nothing":             nil,
	}
	for name, sources := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ComputeMetrics(Statistics{}, sources)
			if !errors.Is(err, ErrNotApplicable) {
				t.Fatalf("expected ErrNotApplicable, got %v", err)
			}
		})
	}
}

func TestComputeMetricsBatteryOnly(t *testing.T) {
	sources := []Source{
		&GridSource{FlowFrom: []FlowFromGrid{{StatEnergyFrom: "sensor.grid_import"}}},
		&BatterySource{StatEnergyFrom: "sensor.battery_out", StatEnergyTo: "sensor.battery_in"},
	}
	stats := Statistics{
		"sensor.grid_import": series(0, 60),
		"sensor.battery_out": series(0, 20),
		"sensor.battery_in":  series(0, 20),
	}
	m, err := ComputeMetrics(stats, sources)
	if err != nil {
		t.Fatalf("compute metrics: %v", err)
	}
	if m.TotalConsumption != 60 || m.SelfConsumption != 0 || m.Autarky != 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.SelfConsumptionPercentage != 0 {
		t.Fatalf("expected 0 without solar, got %v", m.SelfConsumptionPercentage)
	}
}

func TestMetricsValue(t *testing.T) {
	m := Metrics{Autarky: 42, SelfConsumptionPercentage: 87}
	if v, err := m.Value(GaugeAutarky); err != nil || v != 42 {
		t.Fatalf("autarky value: %v %v", v, err)
	}
	if v, err := m.Value(GaugeSelfConsumption); err != nil || v != 87 {
		t.Fatalf("self consumption value: %v %v", v, err)
	}
	if _, err := m.Value("co2"); !errors.Is(err, ErrUnknownGauge) {
		t.Fatalf("expected ErrUnknownGauge, got %v", err)
	}
}
