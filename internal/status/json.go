package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastTick      string       `json:"last_tick,omitempty"`
	Ticks         int          `json:"ticks"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Devices       []DeviceJSON `json:"devices"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DeviceJSON is the JSON representation of a device snapshot. The leading
// fields match the MQTT state payload.
type DeviceJSON struct {
	Name               string   `json:"name"`
	Host               string   `json:"host"`
	ForegroundPackage  *string  `json:"foreground_package"`
	MediaPlaying       bool     `json:"media_playing"`
	HomeScreen         bool     `json:"home_screen"`
	InTargetApp        bool     `json:"in_target_app"`
	IdleEligible       bool     `json:"idle_eligible"`
	IdleSeconds        float64  `json:"idle_seconds"`
	IdleTimeoutSeconds *float64 `json:"idle_timeout_seconds"`
	LastAction         string   `json:"last_action"`
	Reachable          bool     `json:"reachable"`
	Error              string   `json:"error,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollSeconds        int    `json:"poll_interval_seconds"`
	IdleTimeoutSeconds *int   `json:"idle_timeout_seconds"`
	Broker             string `json:"broker"`
	HTTPAddr           string `json:"http_addr"`
	ConfigPath         string `json:"config_path,omitempty"`
}

// Device converts a device snapshot to its JSON form.
func Device(d DeviceSnapshot) DeviceJSON {
	dj := DeviceJSON{
		Name:               d.Name,
		Host:               d.Host,
		MediaPlaying:       d.MediaPlaying,
		HomeScreen:         d.HomeScreen,
		InTargetApp:        d.InTargetApp,
		IdleEligible:       d.IdleEligible,
		IdleSeconds:        d.IdleSeconds,
		IdleTimeoutSeconds: d.IdleTimeoutSeconds,
		LastAction:         string(d.LastAction),
		Reachable:          d.Reachable,
		Error:              d.Error,
	}
	if dj.LastAction == "" {
		dj.LastAction = "none"
	}
	if d.ForegroundPackage != "" {
		pkg := d.ForegroundPackage
		dj.ForegroundPackage = &pkg
	}
	if !d.UpdatedAt.IsZero() {
		dj.UpdatedAt = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dj
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Ticks:         snap.Ticks,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Devices:       make([]DeviceJSON, 0, len(snap.Devices)),
		Config: ConfigJSON{
			PollSeconds:        snap.Config.PollSeconds,
			IdleTimeoutSeconds: snap.Config.IdleTimeoutSeconds,
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
			ConfigPath:         snap.Config.ConfigPath,
		},
	}
	if !snap.LastTick.IsZero() {
		inner.LastTick = snap.LastTick.UTC().Format(time.RFC3339)
	}
	for _, d := range snap.Devices {
		inner.Devices = append(inner.Devices, Device(d))
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
