// Package minder runs the poll cycle: for every configured device it asks the
// adb bridge what is on screen, advances the idle tracker and launches the
// idle app when the device has been sitting on its home screen long enough.
package minder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sweeney/firestick-minder/internal/adb"
	"github.com/sweeney/firestick-minder/internal/config"
	"github.com/sweeney/firestick-minder/internal/logger"
	"github.com/sweeney/firestick-minder/internal/logic"
	"github.com/sweeney/firestick-minder/internal/mqtt"
	"github.com/sweeney/firestick-minder/internal/status"
)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options holds the collaborators of a Minder. Bridge is required; the rest
// are optional.
type Options struct {
	Bridge adb.Bridge

	// Publisher is nil when telemetry is disabled.
	Publisher mqtt.Publisher

	// MQTTStatus feeds the tracker's connection flag.
	MQTTStatus mqtt.ConnectionStatus

	Tracker *status.Tracker
	Logger  logger.Logger

	Now   func() time.Time
	Sleep SleepFunc
}

// Minder owns the per-device idle state. It is not safe for concurrent use;
// one goroutine drives Run or Tick.
type Minder struct {
	cfg     *config.Resolved
	timeout *float64

	bridge     adb.Bridge
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	log        logger.Logger
	now        func() time.Time
	sleep      SleepFunc

	idle map[string]logic.IdleState
}

// New creates a Minder for the resolved configuration.
func New(cfg *config.Resolved, opts Options) *Minder {
	m := &Minder{
		cfg:        cfg,
		timeout:    cfg.IdleTimeoutSeconds(),
		bridge:     opts.Bridge,
		publisher:  opts.Publisher,
		mqttStatus: opts.MQTTStatus,
		tracker:    opts.Tracker,
		log:        opts.Logger,
		now:        opts.Now,
		sleep:      opts.Sleep,
		idle:       make(map[string]logic.IdleState, len(cfg.Devices)),
	}
	if m.log == nil {
		m.log = logger.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = Sleep
	}
	return m
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IdleSeconds returns the accumulated idle time for a device.
func (m *Minder) IdleSeconds(name string) float64 {
	return m.idle[name].IdleSeconds
}

// Run ticks until ctx is cancelled. Each tick starts roughly one poll
// interval after the previous one started; a tick that fails or panics is
// followed by a full interval of cooldown. Run returns nil on cancellation.
func (m *Minder) Run(ctx context.Context) error {
	interval := time.Duration(m.cfg.PollInterval) * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		started := m.now()
		err := m.safeTick(ctx)
		if ctx.Err() != nil {
			m.log.Info("poll loop stopping")
			return nil
		}

		wait := interval - m.now().Sub(started)
		if err != nil {
			m.log.Error("error in poll loop", logger.Error(err))
			wait = interval
		}
		if wait < 0 {
			wait = 0
		}

		if err := m.sleep(ctx, wait); err != nil {
			m.log.Info("poll loop stopping")
			return nil
		}
	}
}

func (m *Minder) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Debugf("tick panic stack:\n%s", debug.Stack())
			err = fmt.Errorf("panic during tick: %v", r)
		}
	}()
	return m.Tick(ctx)
}

// Tick polls every device once, in configured order. It returns ctx.Err()
// if cancelled part-way, before any further device is touched.
func (m *Minder) Tick(ctx context.Context) error {
	for _, dev := range m.cfg.Devices {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.pollDevice(ctx, dev)
	}

	if m.tracker != nil {
		if m.mqttStatus != nil {
			m.tracker.SetMQTTConnected(m.mqttStatus.IsConnected())
		}
		m.tracker.RecordTick(m.now())
	}
	return nil
}

func (m *Minder) pollDevice(ctx context.Context, dev config.Device) {
	serial := dev.Target()
	log := m.log.Named(dev.Name)

	snap := status.DeviceSnapshot{
		Name:               dev.Name,
		Host:               dev.Host,
		IdleTimeoutSeconds: m.timeout,
		LastAction:         logic.ActionNone,
		UpdatedAt:          m.now(),
	}

	if err := m.bridge.Connect(ctx, serial); err != nil {
		m.logBridgeError(log, "connect", err)
		log.Info("not connected; will retry on next tick")
		snap.Error = err.Error()
		m.updateTracker(snap)
		return
	}
	snap.Reachable = true

	pkg, err := m.bridge.ForegroundPackage(ctx, serial)
	if err != nil {
		m.logBridgeError(log, "foreground package", err)
		pkg = ""
	}
	media, err := m.bridge.MediaPlaying(ctx, serial)
	if err != nil {
		m.logBridgeError(log, "media state", err)
		media = false
	}

	obs := logic.Observation{
		HomeScreen:   pkg != "" && dev.IsHome(pkg),
		InTargetApp:  pkg != "" && pkg == dev.IdlePackage(),
		MediaPlaying: media,
	}
	decision := logic.Advance(m.idle[dev.Name], obs, float64(m.cfg.PollInterval), m.timeout)
	m.idle[dev.Name] = decision.State

	log.Debug("tick",
		logger.String("foreground", pkg),
		logger.Bool("media_playing", obs.MediaPlaying),
		logger.Bool("home_screen", obs.HomeScreen),
		logger.Bool("in_target_app", obs.InTargetApp),
		logger.Bool("idle_eligible", decision.IdleEligible),
		logger.Float64("idle_seconds", decision.State.IdleSeconds),
	)

	if decision.ShouldLaunch && ctx.Err() == nil {
		log.Info("device idle; launching idle app", logger.String("component", dev.IdleComponent))
		if err := m.bridge.Launch(ctx, serial, dev.IdleComponent); err != nil {
			m.logBridgeError(log, "launch", err)
			snap.Error = err.Error()
		}
		snap.LastAction = logic.ActionLaunched
	}

	snap.ForegroundPackage = pkg
	snap.MediaPlaying = obs.MediaPlaying
	snap.HomeScreen = obs.HomeScreen
	snap.InTargetApp = obs.InTargetApp
	snap.IdleEligible = decision.IdleEligible
	snap.IdleSeconds = decision.State.IdleSeconds

	if m.publisher != nil {
		if err := m.publisher.PublishState(snap); err != nil {
			log.Warn("publish state failed", logger.Error(err))
		}
	}
	m.updateTracker(snap)
}

func (m *Minder) updateTracker(snap status.DeviceSnapshot) {
	if m.tracker != nil {
		m.tracker.UpdateDevice(snap)
	}
}

func (m *Minder) logBridgeError(log logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, adb.ErrUnauthorized):
		log.Warn(op+": device unauthorized", logger.String("hint", adb.UnauthorizedHint))
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+": adb timed out", logger.Error(err))
	default:
		log.Warn(op+" failed", logger.Error(err))
	}
}
