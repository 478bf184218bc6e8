package duration

import (
	"time"
)

type (
	// Duration implements the text marshalling interfaces so that timeout
	// knobs can be written as "30s" or "1m" in configuration files.
	Duration time.Duration
)

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
