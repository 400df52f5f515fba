package core

import "fmt"

// GeometryError marks a malformed satellite position (NaN components or
// a zero vector) encountered during a snapshot build. It is fatal to
// that single snapshot only; the timeline keeps advancing.
type GeometryError struct {
	SatelliteID int
	Reason      string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error for satellite %d: %s", e.SatelliteID, e.Reason)
}

// ConfigurationError reports an invalid simulation parameter. It is
// fatal at setup, before any timestep executes.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Param, e.Reason)
}
