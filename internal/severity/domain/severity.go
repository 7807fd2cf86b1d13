// Package severity maps gauge values to display colours.
package severity

import (
	"math"
	"sort"
)

// Band is a named severity category.
type Band string

const (
	BandRed    Band = "red"
	BandYellow Band = "yellow"
	BandGreen  Band = "green"
	BandNormal Band = "normal"
)

var palette = map[Band]string{
	BandRed:    "var(--error-color)",
	BandGreen:  "var(--success-color)",
	BandYellow: "var(--warning-color)",
	BandNormal: "var(--info-color)",
}

// Color returns the theme colour of a band.
func (b Band) Color() (string, bool) {
	color, ok := palette[b]
	return color, ok
}

// NormalColor is the fallback colour.
var NormalColor = palette[BandNormal]

// Result is a classification outcome.
type Result struct {
	Color string `json:"color"`
	Label string `json:"label,omitempty"`
}

var normal = Result{Color: NormalColor, Label: string(BandNormal)}

// Level is one coloured arc start on a needle gauge.
type Level struct {
	Level  float64 `json:"level"`
	Stroke string  `json:"stroke"`
	Label  string  `json:"label,omitempty"`
}

// Scheme classifies values. Build one with Resolve, NewLegacy or NewSegments.
type Scheme interface {
	Classify(value float64) Result
	Levels() []Level
}

// Segment starts a colour range at From.
type Segment struct {
	From  float64 `yaml:"from" json:"from"`
	Color string  `yaml:"color" json:"color"`
	Label string  `yaml:"label,omitempty" json:"label,omitempty"`
}

// Segments is a sorted segment list.
type Segments struct {
	segments []Segment
}

// NewSegments copies and sorts segments by From.
func NewSegments(segments []Segment) Segments {
	sorted := append([]Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
	return Segments{segments: sorted}
}

// Classify returns the colour of the segment whose [from, next.from) range
// holds value, or the normal colour below the first segment.
func (s Segments) Classify(value float64) Result {
	for i, segment := range s.segments {
		if value >= segment.From && (i+1 == len(s.segments) || value < s.segments[i+1].From) {
			return Result{Color: segment.Color, Label: segment.Label}
		}
	}
	return normal
}

// Levels returns one level per segment.
func (s Segments) Levels() []Level {
	levels := make([]Level, 0, len(s.segments))
	for _, segment := range s.segments {
		levels = append(levels, Level{Level: segment.From, Stroke: segment.Color, Label: segment.Label})
	}
	return levels
}

type threshold struct {
	band  Band
	value float64
}

// Legacy is the band-to-threshold scheme. An invalid configuration
// classifies every value as normal.
type Legacy struct {
	thresholds []threshold
	valid      bool
}

// NewLegacy validates and sorts a band-to-threshold map. Any unknown band
// name or NaN threshold invalidates the whole scheme.
func NewLegacy(bands map[string]float64) Legacy {
	thresholds := make([]threshold, 0, len(bands))
	valid := true
	for name, value := range bands {
		band := Band(name)
		if _, ok := band.Color(); !ok || math.IsNaN(value) {
			valid = false
		}
		thresholds = append(thresholds, threshold{band: band, value: value})
	}
	sort.Slice(thresholds, func(i, j int) bool {
		if thresholds[i].value == thresholds[j].value {
			return thresholds[i].band < thresholds[j].band
		}
		return thresholds[i].value < thresholds[j].value
	})
	return Legacy{thresholds: thresholds, valid: valid}
}

// Valid reports whether the thresholds passed validation.
func (l Legacy) Valid() bool { return l.valid }

// Classify applies the right-open interval rule over the sorted thresholds.
// Values below the lowest threshold are normal.
func (l Legacy) Classify(value float64) Result {
	if !l.valid {
		return normal
	}
	for i, t := range l.thresholds {
		if value >= t.value && (i+1 == len(l.thresholds) || value < l.thresholds[i+1].value) {
			color, _ := t.band.Color()
			return Result{Color: color, Label: string(t.band)}
		}
	}
	return normal
}

// Levels returns the thresholds as gauge levels, lowest first.
func (l Legacy) Levels() []Level {
	if len(l.thresholds) == 0 {
		return fallbackLevels()
	}
	levels := make([]Level, 0, len(l.thresholds))
	for _, t := range l.thresholds {
		color, ok := t.band.Color()
		if !ok {
			color = NormalColor
		}
		levels = append(levels, Level{Level: t.value, Stroke: color})
	}
	return levels
}

// Unconfigured is used when a card has neither segments nor thresholds.
type Unconfigured struct{}

// Classify always returns normal.
func (Unconfigured) Classify(float64) Result { return normal }

// Levels returns a single normal level at zero.
func (Unconfigured) Levels() []Level { return fallbackLevels() }

func fallbackLevels() []Level {
	return []Level{{Level: 0, Stroke: NormalColor}}
}

// Resolve picks the scheme for a card. Segments take precedence over the
// legacy thresholds; with neither the scheme is Unconfigured.
func Resolve(legacy map[string]float64, segments []Segment) Scheme {
	if segments != nil {
		return NewSegments(segments)
	}
	if legacy != nil {
		return NewLegacy(legacy)
	}
	return Unconfigured{}
}
