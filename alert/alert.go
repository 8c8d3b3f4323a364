// Package alert decides whether a deployment needs field attention.
//
// Evaluation is a pure function of the latest reading (or its absence) and
// the deployment's missing state. Missing-camera always outranks battery and
// signal readings, which go stale once a device stops reporting.
package alert

import (
	"fmt"

	camwatch "github.com/trailops/camwatch"
)

// Config holds the alert thresholds.
type Config struct {
	// MissingDays is the consecutive-missing-day count at which a silent
	// deployment raises an alert.
	MissingDays int

	// SignalFloor is the signal level below which a reading raises an alert.
	SignalFloor int
}

// DefaultConfig returns the default alert thresholds.
func DefaultConfig() Config {
	return Config{
		MissingDays: 2,
		SignalFloor: 20,
	}
}

// Input is what the evaluator sees for one deployment: the latest reading if
// the device reported this run, and the deployment's missing-day count after
// this run's state transition was applied.
type Input struct {
	// Row is the deployment's reading this run; nil when the device did not
	// report.
	Row *camwatch.NormalizedRow

	// ConsecutiveMissingDays is the post-transition missing-day count. Zero
	// for a deployment that reported this run.
	ConsecutiveMissingDays int
}

// Result is one deployment's alert decision.
type Result struct {
	NeedsAttention bool
	Reason         string
}

// Evaluate applies the alert rules in priority order; the first rule that
// fires wins.
func Evaluate(cfg Config, in Input) Result {
	if in.ConsecutiveMissingDays >= cfg.MissingDays {
		return Result{
			NeedsAttention: true,
			Reason:         fmt.Sprintf("camera missing for %d consecutive days", in.ConsecutiveMissingDays),
		}
	}

	if in.Row == nil {
		// Silent but below the missing threshold: no stale readings to judge.
		return Result{}
	}

	switch camwatch.BatteryStatusFromRaw(in.Row.Battery) {
	case camwatch.BatteryCritical:
		return Result{
			NeedsAttention: true,
			Reason:         "critical battery level - immediate replacement required",
		}
	case camwatch.BatteryLow:
		return Result{
			NeedsAttention: true,
			Reason:         "low battery level requires replacement",
		}
	}

	if in.Row.SignalLevel != nil && *in.Row.SignalLevel < cfg.SignalFloor {
		return Result{
			NeedsAttention: true,
			Reason:         "signal level critically low",
		}
	}

	return Result{}
}
