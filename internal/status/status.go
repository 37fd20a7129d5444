// Package status keeps the latest per-device observation for the HTTP status
// server and MQTT telemetry.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/firestick-minder/internal/logic"
)

// DeviceSnapshot is what one poll learned about one device.
type DeviceSnapshot struct {
	Name string
	Host string

	// ForegroundPackage is empty when it could not be determined.
	ForegroundPackage string

	MediaPlaying bool
	HomeScreen   bool
	InTargetApp  bool
	IdleEligible bool
	IdleSeconds  float64

	// IdleTimeoutSeconds is nil when the idle timer is disabled.
	IdleTimeoutSeconds *float64

	LastAction logic.Action

	// Reachable is false when connecting failed and the device was skipped.
	Reachable bool
	Error     string
	UpdatedAt time.Time
}

// Config contains daemon configuration for display.
type Config struct {
	PollSeconds        int
	IdleTimeoutSeconds *int
	Broker             string
	HTTPAddr           string
	ConfigPath         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Devices       []DeviceSnapshot
	StartTime     time.Time
	Now           time.Time
	LastTick      time.Time
	Ticks         int
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	index   map[string]int
	nowFunc func() time.Time
}

// NewTracker creates a Tracker. Devices are listed in the order given, each
// starting out unreachable until its first poll.
func NewTracker(startTime time.Time, cfg Config, devices []DeviceSnapshot) *Tracker {
	t := &Tracker{
		snap:    Snapshot{StartTime: startTime, Config: cfg},
		index:   make(map[string]int, len(devices)),
		nowFunc: time.Now,
	}
	for _, d := range devices {
		t.index[d.Name] = len(t.snap.Devices)
		t.snap.Devices = append(t.snap.Devices, d)
	}
	return t
}

// UpdateDevice replaces the stored snapshot for d.Name. Unknown names are
// appended.
func (t *Tracker) UpdateDevice(d DeviceSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[d.Name]; ok {
		t.snap.Devices[i] = d
		return
	}
	t.index[d.Name] = len(t.snap.Devices)
	t.snap.Devices = append(t.snap.Devices, d)
}

// RecordTick notes that a poll cycle finished at the given time.
func (t *Tracker) RecordTick(at time.Time) {
	t.mu.Lock()
	t.snap.Ticks++
	t.snap.LastTick = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Devices = append([]DeviceSnapshot(nil), t.snap.Devices...)
	t.mu.RUnlock()
	s.Now = t.nowFunc()
	return s
}
