package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Slow computation thresholds. A full frontier normally completes well
// under a second; anything slower is worth a log line.
const (
	SlowComputationInfo = 1 * time.Second
	SlowComputationWarn = 5 * time.Second
)

// Timer is a simple performance timer for measuring computation duration
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer creates a new timer with the given name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// StopWithContext stops the timer and logs with additional context
func (t *Timer) StopWithContext(fields map[string]interface{}) time.Duration {
	duration := time.Since(t.start)

	event := t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration)

	for key, value := range fields {
		switch v := value.(type) {
		case string:
			event = event.Str(key, v)
		case int:
			event = event.Int(key, v)
		case float64:
			event = event.Float64(key, v)
		case bool:
			event = event.Bool(key, v)
		default:
			event = event.Interface(key, v)
		}
	}

	event.Msg("Performance measurement")

	if duration > SlowComputationWarn {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Msg("Slow computation detected (>5s)")
	} else if duration > SlowComputationInfo {
		t.log.Info().
			Str("operation", t.name).
			Dur("duration", duration).
			Msg("Computation took longer than expected (>1s)")
	}

	return duration
}
