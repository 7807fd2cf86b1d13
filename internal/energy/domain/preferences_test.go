package energy

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const prefsJSON = `{
  "energy_sources": [
    {"type": "grid",
     "flow_from": [{"stat_energy_from": "sensor.import", "stat_cost": "sensor.import_cost", "entity_energy_price": null, "number_energy_price": null}],
     "flow_to": [{"stat_energy_to": "sensor.export", "stat_compensation": null, "entity_energy_price": null, "number_energy_price": 0.08}],
     "cost_adjustment_day": 0},
    {"type": "solar", "stat_energy_from": "sensor.solar", "config_entry_solar_forecast": ["abc"]},
    {"type": "battery", "stat_energy_from": "sensor.bat_out", "stat_energy_to": "sensor.bat_in"},
    {"type": "gas", "stat_energy_from": "sensor.gas", "stat_cost": null, "entity_energy_price": null, "number_energy_price": null},
    {"type": "water", "stat_energy_from": "sensor.water", "stat_cost": "sensor.water_cost", "entity_energy_price": null, "number_energy_price": null}
  ],
  "device_consumption": [{"stat_consumption": "sensor.fridge"}]
}`

func TestPreferencesDecodeTaggedSources(t *testing.T) {
	var prefs Preferences
	if err := json.Unmarshal([]byte(prefsJSON), &prefs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(prefs.Sources) != 5 {
		t.Fatalf("expected 5 sources, got %d", len(prefs.Sources))
	}
	types := prefs.ByType()
	if len(types.Grid) != 1 || len(types.Solar) != 1 || len(types.Battery) != 1 || len(types.Gas) != 1 || len(types.Water) != 1 {
		t.Fatalf("unexpected grouping: %+v", types)
	}
	if types.Grid[0].FlowTo[0].NumberEnergyPrice == nil || *types.Grid[0].FlowTo[0].NumberEnergyPrice != 0.08 {
		t.Fatalf("expected export price decoded")
	}
	if len(prefs.DeviceConsumption) != 1 || prefs.DeviceConsumption[0].StatConsumption != "sensor.fridge" {
		t.Fatalf("unexpected device consumption: %+v", prefs.DeviceConsumption)
	}

	encoded, err := json.Marshal(prefs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"type":"battery"`) {
		t.Fatalf("expected type tag in %s", encoded)
	}
}

func TestPreferencesRejectUnknownType(t *testing.T) {
	var prefs Preferences
	err := json.Unmarshal([]byte(`{"energy_sources":[{"type":"wind"}],"device_consumption":[]}`), &prefs)
	if !errors.Is(err, ErrUnknownSourceType) {
		t.Fatalf("expected ErrUnknownSourceType, got %v", err)
	}
}

func TestReferencedStatisticIDs(t *testing.T) {
	var prefs Preferences
	if err := json.Unmarshal([]byte(prefsJSON), &prefs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	info := Info{CostSensors: map[string]string{
		"sensor.export": "sensor.export_compensation",
		"sensor.gas":    "sensor.gas_cost",
	}}

	all := ReferencedStatisticIDs(prefs, info)
	want := []string{
		"sensor.import", "sensor.import_cost",
		"sensor.export", "sensor.export_compensation",
		"sensor.solar",
		"sensor.bat_out", "sensor.bat_in",
		"sensor.gas", "sensor.gas_cost",
		"sensor.water", "sensor.water_cost",
	}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("unexpected ids:\n got %v\nwant %v", all, want)
	}

	water := ReferencedStatisticIDs(prefs, info, SourceWater)
	if !reflect.DeepEqual(water, []string{"sensor.water", "sensor.water_cost"}) {
		t.Fatalf("unexpected water ids: %v", water)
	}
	if got := GridConsumptionStatIDs(prefs); !reflect.DeepEqual(got, []string{"sensor.import"}) {
		t.Fatalf("unexpected grid consumption ids: %v", got)
	}
}

func TestGasUnit(t *testing.T) {
	var prefs Preferences
	if err := json.Unmarshal([]byte(prefsJSON), &prefs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	volume := "volume"
	meta := map[string]StatisticMetadata{"sensor.gas": {StatisticID: "sensor.gas", UnitClass: &volume}}
	if got := GasUnit(prefs, meta, "km"); got != "m³" {
		t.Fatalf("expected m³, got %q", got)
	}
	if got := GasUnit(prefs, meta, "mi"); got != "ft³" {
		t.Fatalf("expected ft³, got %q", got)
	}
	if got := GasUnit(prefs, nil, "km"); got != "" {
		t.Fatalf("expected unknown unit, got %q", got)
	}
}
