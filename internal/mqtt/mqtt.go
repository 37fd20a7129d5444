// Package mqtt publishes per-device telemetry, with an abstraction for testing.
package mqtt

import (
	"encoding/json"

	"github.com/sweeney/firestick-minder/internal/status"
)

// Availability payloads published on AvailabilityTopic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// StateTopic is where a device's state snapshot is published.
func StateTopic(prefix, device string) string {
	return prefix + "/" + device + "/state"
}

// AvailabilityTopic carries the retained online/offline marker and the Last Will.
func AvailabilityTopic(prefix string) string {
	return prefix + "/status"
}

// Publisher publishes device state to MQTT.
type Publisher interface {
	// PublishState sends one device's snapshot to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishState(device status.DeviceSnapshot) error

	// Close announces "offline" and disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StatePayload is the JSON published to StateTopic. Nullable fields are
// pointers so that "unknown" encodes as null.
type StatePayload struct {
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
}

// FormatState creates the JSON payload for a device snapshot.
func FormatState(d status.DeviceSnapshot) ([]byte, error) {
	dj := status.Device(d)
	payload := StatePayload{
		Name:               dj.Name,
		Host:               dj.Host,
		ForegroundPackage:  dj.ForegroundPackage,
		MediaPlaying:       dj.MediaPlaying,
		HomeScreen:         dj.HomeScreen,
		InTargetApp:        dj.InTargetApp,
		IdleEligible:       dj.IdleEligible,
		IdleSeconds:        dj.IdleSeconds,
		IdleTimeoutSeconds: dj.IdleTimeoutSeconds,
		LastAction:         dj.LastAction,
	}
	return json.Marshal(payload)
}
