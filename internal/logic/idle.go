package logic

// Advance takes the previous state and a fresh observation and returns the
// next state plus whether the idle target should be launched.
//
// A nil timeout disables the idle timer: the first eligible tick launches.
// Any ineligible tick resets progress to zero, and so does a launch, so the
// target is not relaunched on every tick while the device stays idle.
func Advance(state IdleState, obs Observation, pollInterval float64, timeout *float64) Decision {
	eligible := obs.HomeScreen && !obs.MediaPlaying && !obs.InTargetApp

	if eligible {
		state.IdleSeconds += pollInterval
	} else {
		state.IdleSeconds = 0
	}

	var effective float64
	if timeout != nil {
		effective = *timeout
	}

	launch := eligible && state.IdleSeconds >= effective && !obs.InTargetApp
	if launch {
		state.IdleSeconds = 0
	}

	return Decision{
		State:        state,
		ShouldLaunch: launch,
		IdleEligible: eligible,
	}
}
