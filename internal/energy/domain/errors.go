package energy

import "errors"

var (
	// ErrNotApplicable is returned when the configured sources cannot produce a gauge.
	ErrNotApplicable = errors.New("energy: not applicable")
	// ErrUnknownSourceType is returned when a preference entry carries an unsupported type.
	ErrUnknownSourceType = errors.New("energy: unknown source type")
	// ErrInvalidCollectionKey is returned when a custom collection key lacks the energy_ prefix.
	ErrInvalidCollectionKey = errors.New("energy: collection key must start with energy_")
	// ErrUnknownGauge is returned for gauge types other than autarky and self_consumption.
	ErrUnknownGauge = errors.New("energy: unknown gauge type")
)
