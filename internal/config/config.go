// Package config resolves the daemon configuration from an optional YAML file
// and several generations of environment variables.
//
// Every field is resolved independently through an ordered list of sources;
// the first source that yields a value wins and its label is recorded in
// Resolved.Sources for startup diagnostics.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Environment variable names. Several naming generations coexist; the
// resolvers below decide which one wins.
const (
	EnvConfigPath = "FIRESTICK_MINDER_CONFIG"

	EnvIdleApp       = "MINDER_APP"
	EnvIdleAppLegacy = "RUNNER_APP"

	EnvPollInterval       = "FSM_POLL_INTERVAL"
	EnvPollIntervalLegacy = "RUNNER_POLL_SECONDS"

	EnvIdleTimeout       = "FSM_IDLE_TIMEOUT"
	EnvIdleTimeoutLegacy = "RUNNER_IDLE_TIMEOUT"

	EnvLogLevel = "FSM_LOG_LEVEL"
	EnvLogFile  = "FSM_LOG_FILE"
	EnvHTTPAddr = "FSM_HTTP_ADDR"

	EnvLogMaxSizeMB = "FSM_LOG_MAX_SIZE_MB"

	EnvMQTTEnabled     = "FSM_MQTT_ENABLED"
	EnvMQTTHost        = "FSM_MQTT_HOST"
	EnvMQTTPort        = "FSM_MQTT_PORT"
	EnvMQTTTopicPrefix = "FSM_MQTT_TOPIC_PREFIX"
	EnvMQTTUsername    = "FSM_MQTT_USERNAME"
	EnvMQTTPassword    = "FSM_MQTT_PASSWORD"

	EnvStructuredDevicePrefix = "FIRESTICK_MINDER_DEVICE_"
	EnvShorthandDevices       = "RUNNER_DEVICES"
)

// Defaults.
const (
	DefaultPollInterval    = 5
	DefaultADBPort         = 5555
	DefaultMQTTPort        = 1883
	DefaultMQTTTopicPrefix = "home/firestick"
	DefaultLogLevel        = "info"

	// MaxPollInterval caps poll_interval_seconds at one day.
	MaxPollInterval = 24 * 60 * 60
)

// DefaultHomePackages are the Fire TV launchers used when a device does not
// list its own home packages.
var DefaultHomePackages = []string{"com.amazon.firetv.launcher", "com.amazon.tv.launcher"}

// Provenance labels for values that did not come from a named variable.
const (
	SourceFile        = "file"
	SourceEnv         = "env"
	SourceDefault     = "default"
	SourceEnvDisabled = "env_disabled"
)

// Keys of Resolved.Sources.
const (
	FieldIdleApp      = "idle_app"
	FieldPollInterval = "poll_interval_seconds"
	FieldIdleTimeout  = "idle_timeout_seconds"
	FieldDevices      = "devices"
	FieldMQTT         = "mqtt"
	FieldLogLevel     = "log_level"
	FieldLogFile      = "log_file"
	FieldLogMaxSizeMB = "log_max_size_mb"
	FieldHTTPAddr     = "http_addr"
)

// Error is returned for every configuration problem. It is fatal at startup.
type Error struct {
	err error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

func errorf(format string, args ...interface{}) error {
	return &Error{err: fmt.Errorf(format, args...)}
}

// Env is a snapshot of the process environment.
type Env map[string]string

// EnvFromOS captures os.Environ.
func EnvFromOS() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// get returns a non-empty, trimmed value. Empty variables count as unset.
func (e Env) get(key string) (string, bool) {
	v, ok := e[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// File is the decoded YAML document. A nil File means no file was loaded.
type File map[string]interface{}

// Device is one configured Fire TV.
type Device struct {
	Name          string
	Host          string
	Port          int
	HomePackages  map[string]struct{}
	IdleComponent string
}

// Target is the adb serial for the device ("host:port").
func (d Device) Target() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// IdlePackage is the package portion of the idle component.
func (d Device) IdlePackage() string {
	pkg, _, _ := strings.Cut(d.IdleComponent, "/")
	return pkg
}

// IsHome reports whether pkg is one of the device's launcher packages.
func (d Device) IsHome(pkg string) bool {
	_, ok := d.HomePackages[pkg]
	return ok
}

// HomePackageList returns the home packages sorted.
func (d Device) HomePackageList() []string {
	out := make([]string, 0, len(d.HomePackages))
	for p := range d.HomePackages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MQTT describes the optional telemetry broker.
type MQTT struct {
	Host        string
	Port        int
	TopicPrefix string
	Username    string
	Password    string
}

// Broker is the paho broker URL.
func (m MQTT) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}

// Resolved is the normalized configuration, built once and read-only after.
type Resolved struct {
	PollInterval int
	IdleTimeout  *int // nil disables the idle timer
	IdleApp      string
	Devices      []Device
	MQTT         *MQTT // nil disables telemetry
	LogLevel     string
	LogFile      string
	LogMaxSizeMB int // 0 leaves the rotation size to the logger
	HTTPAddr     string

	// ConfigPath is the YAML file that was loaded, empty in env-only mode.
	ConfigPath string

	// Sources maps each field to the label of the source that supplied it.
	Sources map[string]string
}

// IdleTimeoutSeconds returns the timeout as float seconds for the idle logic.
func (r *Resolved) IdleTimeoutSeconds() *float64 {
	if r.IdleTimeout == nil {
		return nil
	}
	v := float64(*r.IdleTimeout)
	return &v
}

// DeviceNames lists device names in configured order.
func (r *Resolved) DeviceNames() []string {
	names := make([]string, len(r.Devices))
	for i, d := range r.Devices {
		names[i] = d.Name
	}
	return names
}

// Device looks a device up by name.
func (r *Resolved) Device(name string) (Device, bool) {
	for _, d := range r.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}

// Summary renders a one-line report of where each value came from.
func (r *Resolved) Summary() string {
	var origin []string
	if r.ConfigPath != "" {
		origin = append(origin, "YAML")
	}
	for _, src := range r.Sources {
		if src != SourceFile && src != SourceDefault {
			origin = append(origin, "environment")
			break
		}
	}
	if len(origin) == 0 {
		origin = append(origin, "defaults")
	}

	timeout := "disabled"
	if r.IdleTimeout != nil {
		timeout = fmt.Sprintf("%d", *r.IdleTimeout)
	}

	return fmt.Sprintf(
		"sources used: %s; poll_interval_seconds (%d) from %s; idle_timeout_seconds (%s) from %s; "+
			"devices (%d) from %s; idle_app from %s; mqtt from %s; log_level (%s) from %s",
		strings.Join(origin, ", "),
		r.PollInterval, r.source(FieldPollInterval),
		timeout, r.source(FieldIdleTimeout),
		len(r.Devices), r.source(FieldDevices),
		r.source(FieldIdleApp),
		r.source(FieldMQTT),
		r.LogLevel, r.source(FieldLogLevel),
	)
}

func (r *Resolved) source(field string) string {
	if s, ok := r.Sources[field]; ok {
		return s
	}
	return SourceDefault
}
