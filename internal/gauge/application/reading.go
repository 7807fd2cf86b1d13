package application

import (
	"errors"
	"time"

	card "energy-gauge/internal/card/domain"
	energy "energy-gauge/internal/energy/domain"
	severity "energy-gauge/internal/severity/domain"
)

// Status of a reading.
type Status string

const (
	StatusOK            Status = "ok"
	StatusLoading       Status = "loading"
	StatusNotApplicable Status = "not_applicable"
)

// Messages shown instead of a gauge.
const (
	MessageLoading           = "Loading…"
	MessageNoSolar           = "You have not produced any solar energy"
	MessageCouldNotCalculate = "Self-consumed solar energy couldn't be calculated"
)

const (
	tooltipAutarky = "This card indicates how much of the energy consumed by your home was not drawn from the grid. " +
		"Solar energy and energy discharged from your home battery both count as self-supplied."
	tooltipSelfConsumption = "This card indicates how much of the solar energy you produced was used by your home " +
		"or stored in your home battery instead of being returned to the grid."
)

// Reading is what a card displays for the latest snapshot.
type Reading struct {
	CardID    string           `json:"card_id"`
	Name      string           `json:"name,omitempty"`
	Gauge     energy.Gauge     `json:"gauge"`
	Status    Status           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Value     float64          `json:"value"`
	Formatted string           `json:"formatted,omitempty"`
	Unit      string           `json:"unit"`
	Min       float64          `json:"min"`
	Max       float64          `json:"max"`
	Needle    bool             `json:"needle"`
	Color     string           `json:"color,omitempty"`
	Label     string           `json:"label,omitempty"`
	Band      string           `json:"band,omitempty"`
	Levels    []severity.Level `json:"levels,omitempty"`
	Metrics   *energy.Metrics  `json:"metrics,omitempty"`
	Tooltip   string           `json:"tooltip,omitempty"`
	Clickable bool             `json:"clickable"`
	Entity    string           `json:"entity,omitempty"`
	Start     time.Time        `json:"start,omitempty"`
	End       time.Time        `json:"end,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Evaluate computes the reading of c for a snapshot; a nil snapshot is
// still loading. The gauge colour is left to the levels when the needle is shown.
func Evaluate(c card.Card, data *energy.Data, now time.Time) Reading {
	reading := Reading{
		CardID:    c.ID,
		Gauge:     c.Gauge,
		Unit:      c.Unit,
		Min:       c.Min,
		Max:       c.Max,
		Needle:    c.Needle,
		Clickable: c.Clickable,
		Entity:    c.Entity,
		UpdatedAt: now,
	}
	if c.ShowName {
		reading.Name = c.Name
	}
	if c.ShowTooltip {
		reading.Tooltip = tooltip(c)
	}
	if data == nil {
		reading.Status = StatusLoading
		reading.Message = MessageLoading
		return reading
	}
	reading.Start, reading.End = data.Start, data.End

	metrics, err := energy.ComputeMetrics(data.Stats, data.Prefs.Sources)
	if err != nil {
		reading.Status = StatusNotApplicable
		reading.Message = MessageCouldNotCalculate
		if errors.Is(err, energy.ErrNotApplicable) && len(data.Prefs.ByType().Solar) == 0 {
			reading.Message = MessageNoSolar
		}
		return reading
	}
	reading.Metrics = &metrics
	if c.Gauge == energy.GaugeSelfConsumption && metrics.TotalSolarProduction == 0 {
		reading.Status = StatusNotApplicable
		reading.Message = MessageNoSolar
		return reading
	}

	value, err := metrics.Value(c.Gauge)
	if err != nil {
		reading.Status = StatusNotApplicable
		reading.Message = MessageCouldNotCalculate
		return reading
	}
	reading.Status = StatusOK
	reading.Value = value
	reading.Formatted = c.FormatValue(value)

	result := c.Severity.Classify(value)
	reading.Label = result.Label
	reading.Band = bandOf(result)
	if c.Needle {
		reading.Levels = c.Severity.Levels()
	} else {
		reading.Color = result.Color
	}
	return reading
}

// bandOf names the classified band: its label, or its colour for unlabelled segments.
func bandOf(result severity.Result) string {
	if result.Label != "" {
		return result.Label
	}
	return result.Color
}

func tooltip(c card.Card) string {
	if c.Tooltip != "" {
		return c.Tooltip
	}
	if c.Gauge == energy.GaugeSelfConsumption {
		return tooltipSelfConsumption
	}
	return tooltipAutarky
}
