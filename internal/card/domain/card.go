// Package card holds gauge card configuration.
package card

import (
	"fmt"
	"strconv"

	energy "energy-gauge/internal/energy/domain"
	severity "energy-gauge/internal/severity/domain"
)

const (
	DefaultMin      = 0.0
	DefaultMax      = 100.0
	DefaultDecimals = 1
	DefaultUnit     = "%"
)

// DefaultSeverity applies when a card configures neither severity nor segments.
func DefaultSeverity() map[string]float64 {
	return map[string]float64{"green": 70, "yellow": 30, "red": 0}
}

// Show toggles optional card elements.
type Show struct {
	Name    *bool `yaml:"name,omitempty" json:"name,omitempty"`
	Tooltip *bool `yaml:"tooltip,omitempty" json:"tooltip,omitempty"`
}

// Config is a card as written by the user. Unset fields take defaults in Resolve.
type Config struct {
	ID                string             `yaml:"id" json:"id"`
	Type              string             `yaml:"type,omitempty" json:"type,omitempty"`
	Name              string             `yaml:"name,omitempty" json:"name,omitempty"`
	Entity            string             `yaml:"entity,omitempty" json:"entity,omitempty"`
	GaugeType         energy.Gauge       `yaml:"gauge_type,omitempty" json:"gauge_type,omitempty"`
	Min               *float64           `yaml:"min,omitempty" json:"min,omitempty"`
	Max               *float64           `yaml:"max,omitempty" json:"max,omitempty"`
	Unit              string             `yaml:"unit,omitempty" json:"unit,omitempty"`
	UnitOfMeasurement string             `yaml:"unit_of_measurement,omitempty" json:"unit_of_measurement,omitempty"`
	Needle            *bool              `yaml:"needle,omitempty" json:"needle,omitempty"`
	Severity          map[string]float64 `yaml:"severity,omitempty" json:"severity,omitempty"`
	Segments          []severity.Segment `yaml:"segments,omitempty" json:"segments,omitempty"`
	Decimals          *int               `yaml:"decimals,omitempty" json:"decimals,omitempty"`
	Show              Show               `yaml:"show,omitempty" json:"show,omitempty"`
	Tooltip           string             `yaml:"tooltip,omitempty" json:"tooltip,omitempty"`
	Clickable         bool               `yaml:"clickable,omitempty" json:"clickable,omitempty"`
	CollectionKey     string             `yaml:"collection_key,omitempty" json:"collection_key,omitempty"`
}

// Card is a validated configuration with defaults applied.
type Card struct {
	ID            string
	Name          string
	Entity        string
	Gauge         energy.Gauge
	Min           float64
	Max           float64
	Unit          string
	Needle        bool
	Severity      severity.Scheme
	Decimals      int
	ShowName      bool
	ShowTooltip   bool
	Tooltip       string
	Clickable     bool
	CollectionKey string
	Config        Config
}

// Resolve validates the configuration and merges defaults.
func (c Config) Resolve() (Card, error) {
	if c.ID == "" {
		return Card{}, ErrMissingID
	}
	gauge := c.GaugeType
	if gauge == "" {
		gauge = energy.GaugeAutarky
	}
	if !gauge.Valid() {
		return Card{}, fmt.Errorf("card %s: %w", c.ID, energy.ErrUnknownGauge)
	}
	key, err := energy.CollectionKey(c.CollectionKey)
	if err != nil {
		return Card{}, fmt.Errorf("card %s: %w", c.ID, err)
	}

	out := Card{
		ID:            c.ID,
		Name:          c.Name,
		Entity:        c.Entity,
		Gauge:         gauge,
		Min:           floatOr(c.Min, DefaultMin),
		Max:           floatOr(c.Max, DefaultMax),
		Unit:          DefaultUnit,
		Needle:        boolOr(c.Needle, true),
		Decimals:      DefaultDecimals,
		ShowName:      boolOr(c.Show.Name, true),
		ShowTooltip:   boolOr(c.Show.Tooltip, false),
		Tooltip:       c.Tooltip,
		Clickable:     c.Clickable,
		CollectionKey: key,
		Config:        c,
	}
	if c.Unit != "" {
		out.Unit = c.Unit
	} else if c.UnitOfMeasurement != "" {
		out.Unit = c.UnitOfMeasurement
	}
	if c.Decimals != nil {
		if *c.Decimals < 0 {
			return Card{}, fmt.Errorf("card %s: %w", c.ID, ErrInvalidDecimals)
		}
		out.Decimals = *c.Decimals
	}
	if out.Min >= out.Max {
		return Card{}, fmt.Errorf("card %s: %w", c.ID, ErrInvalidRange)
	}
	if out.Name == "" {
		out.Name = defaultName(gauge)
	}

	legacy := c.Severity
	if legacy == nil && c.Segments == nil {
		legacy = DefaultSeverity()
	}
	out.Severity = severity.Resolve(legacy, c.Segments)
	return out, nil
}

// FormatValue renders v with the card's decimals.
func (c Card) FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', c.Decimals, 64)
}

// Clamp limits v to the card's range for drawing.
func (c Card) Clamp(v float64) float64 {
	if v < c.Min {
		return c.Min
	}
	if v > c.Max {
		return c.Max
	}
	return v
}

func defaultName(g energy.Gauge) string {
	switch g {
	case energy.GaugeSelfConsumption:
		return "Self-consumption"
	default:
		return "Autarky"
	}
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
