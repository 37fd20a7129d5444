package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/firestick-minder/internal/logic"
)

func initialDevices() []DeviceSnapshot {
	return []DeviceSnapshot{
		{Name: "LR", Host: "192.168.30.51"},
		{Name: "BR", Host: "192.168.30.52"},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollSeconds: 5, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg, initialDevices())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollSeconds != 5 {
		t.Errorf("Config.PollSeconds: got %d, want 5", snap.Config.PollSeconds)
	}
	if len(snap.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(snap.Devices))
	}
	if snap.Devices[0].Name != "LR" || snap.Devices[1].Name != "BR" {
		t.Errorf("device order not preserved: %+v", snap.Devices)
	}
	if snap.Devices[0].Reachable {
		t.Error("devices should start unreachable")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateDevice(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, initialDevices())

	tr.UpdateDevice(DeviceSnapshot{
		Name:              "BR",
		Host:              "192.168.30.52",
		ForegroundPackage: "com.amazon.tv.launcher",
		HomeScreen:        true,
		IdleEligible:      true,
		IdleSeconds:       10,
		Reachable:         true,
		LastAction:        logic.ActionNone,
	})

	snap := tr.Snapshot()
	if len(snap.Devices) != 2 {
		t.Fatalf("update should not add a device, got %d", len(snap.Devices))
	}
	br := snap.Devices[1]
	if !br.Reachable || br.IdleSeconds != 10 || !br.HomeScreen {
		t.Errorf("BR not updated: %+v", br)
	}

	tr.UpdateDevice(DeviceSnapshot{Name: "new"})
	if got := len(tr.Snapshot().Devices); got != 3 {
		t.Errorf("unknown device should be appended, got %d devices", got)
	}
}

func TestRecordTick(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, nil)
	at := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)

	tr.RecordTick(at)
	tr.RecordTick(at.Add(5 * time.Second))

	snap := tr.Snapshot()
	if snap.Ticks != 2 {
		t.Errorf("Ticks: got %d, want 2", snap.Ticks)
	}
	if !snap.LastTick.Equal(at.Add(5 * time.Second)) {
		t.Errorf("LastTick: got %v", snap.LastTick)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, nil)

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{}, nil)

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, initialDevices())
	tr.UpdateDevice(DeviceSnapshot{Name: "LR", IdleSeconds: 5})

	snap1 := tr.Snapshot()

	tr.UpdateDevice(DeviceSnapshot{Name: "LR", IdleSeconds: 10})

	if snap1.Devices[0].IdleSeconds != 5 {
		t.Error("snapshot should be a copy; device slice was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeout := 300
	timeoutF := 300.0
	snap := Snapshot{
		Devices: []DeviceSnapshot{
			{
				Name:               "LR",
				Host:               "192.168.30.51",
				ForegroundPackage:  "com.amazon.tv.launcher",
				HomeScreen:         true,
				IdleEligible:       true,
				IdleSeconds:        15,
				IdleTimeoutSeconds: &timeoutF,
				LastAction:         logic.ActionNone,
				Reachable:          true,
				UpdatedAt:          start.Add(time.Minute),
			},
			{Name: "BR", Host: "192.168.30.52"},
		},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		LastTick:      start.Add(time.Minute),
		Ticks:         12,
		MQTTConnected: true,
		Config:        Config{PollSeconds: 5, IdleTimeoutSeconds: &timeout, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.Ticks != 12 {
		t.Errorf("Ticks: got %d, want 12", parsed.Status.Ticks)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(parsed.Status.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(parsed.Status.Devices))
	}

	lr := parsed.Status.Devices[0]
	if lr.ForegroundPackage == nil || *lr.ForegroundPackage != "com.amazon.tv.launcher" {
		t.Errorf("LR foreground: got %v", lr.ForegroundPackage)
	}
	if lr.IdleTimeoutSeconds == nil || *lr.IdleTimeoutSeconds != 300 {
		t.Errorf("LR idle timeout: got %v", lr.IdleTimeoutSeconds)
	}
	if lr.LastAction != "none" {
		t.Errorf("LR last action: got %q", lr.LastAction)
	}

	br := parsed.Status.Devices[1]
	if br.ForegroundPackage != nil {
		t.Errorf("BR foreground should be null, got %q", *br.ForegroundPackage)
	}
	if br.LastAction != "none" {
		t.Errorf("empty last action should format as none, got %q", br.LastAction)
	}
	if parsed.Status.Config.IdleTimeoutSeconds == nil || *parsed.Status.Config.IdleTimeoutSeconds != 300 {
		t.Errorf("config idle timeout: got %v", parsed.Status.Config.IdleTimeoutSeconds)
	}
}

func TestFormatJSONNullFields(t *testing.T) {
	snap := Snapshot{
		Devices:   []DeviceSnapshot{{Name: "LR"}},
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if _, exists := status["last_tick"]; exists {
		t.Error("last_tick should be omitted before the first tick")
	}
	dev := status["devices"].([]interface{})[0].(map[string]interface{})
	for _, key := range []string{"foreground_package", "idle_timeout_seconds"} {
		v, exists := dev[key]
		if !exists {
			t.Errorf("%s should be present", key)
		}
		if v != nil {
			t.Errorf("%s: got %v, want null", key, v)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, initialDevices())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateDevice(DeviceSnapshot{Name: "LR", IdleSeconds: float64(i)})
			tr.SetMQTTConnected(i%2 == 0)
			tr.RecordTick(time.Now())
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
