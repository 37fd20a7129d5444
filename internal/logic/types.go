// Package logic contains the pure idle-tracking rules for a single device.
// This package has NO external dependencies (no adb, MQTT, OS, or time.Sleep).
// Poll intervals and timeouts are passed in as plain seconds.
package logic

// Action names the side effect chosen for a device on a tick.
type Action string

const (
	ActionNone     Action = "none"
	ActionLaunched Action = "launched_target_from_idle"
)

// IdleState is the per-device accumulator carried between ticks.
type IdleState struct {
	// Seconds spent idle-eligible since the last reset.
	IdleSeconds float64
}

// Observation is what a single poll learned about a device.
type Observation struct {
	HomeScreen   bool // foreground package is one of the device's home packages
	InTargetApp  bool // foreground package is the idle target's package
	MediaPlaying bool // some media session reports PLAYING
}

// Decision is the outcome of advancing the idle state by one tick.
type Decision struct {
	State        IdleState
	ShouldLaunch bool
	IdleEligible bool
}

// Action returns the action implied by the decision.
func (d Decision) Action() Action {
	if d.ShouldLaunch {
		return ActionLaunched
	}
	return ActionNone
}
