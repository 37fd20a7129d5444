package config

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// source looks a single field up in one place. ok is false when that place
// has nothing to say; err reports a value that is present but invalid.
type source[T any] struct {
	label  string
	lookup func(env Env, file File) (v T, label string, ok bool, err error)
}

// first walks sources in priority order and returns the first hit.
func first[T any](env Env, file File, sources []source[T]) (T, string, bool, error) {
	var zero T
	for _, s := range sources {
		v, label, ok, err := s.lookup(env, file)
		if err != nil {
			return zero, "", false, err
		}
		if ok {
			if label == "" {
				label = s.label
			}
			return v, label, true, nil
		}
	}
	return zero, "", false, nil
}

func envString(name string) source[string] {
	return source[string]{label: name, lookup: func(env Env, _ File) (string, string, bool, error) {
		v, ok := env.get(name)
		return v, "", ok, nil
	}}
}

func envPositiveInt(name string) source[int] {
	return source[int]{label: name, lookup: func(env Env, _ File) (int, string, bool, error) {
		raw, ok := env.get(name)
		if !ok {
			return 0, "", false, nil
		}
		v, err := parsePositiveInt(raw, name)
		return v, "", err == nil, err
	}}
}

// firstIndexedEnvInt picks the lowest-numbered variable matching pattern.
// The pattern's first group must capture the index.
func firstIndexedEnvInt(pattern *regexp.Regexp) source[int] {
	return source[int]{lookup: func(env Env, _ File) (int, string, bool, error) {
		best := -1
		var bestKey string
		for key := range env {
			m := pattern.FindStringSubmatch(key)
			if m == nil {
				continue
			}
			if _, ok := env.get(key); !ok {
				continue
			}
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if best < 0 || idx < best {
				best, bestKey = idx, key
			}
		}
		if best < 0 {
			return 0, "", false, nil
		}
		raw, _ := env.get(bestKey)
		v, err := parsePositiveInt(raw, bestKey)
		return v, bestKey, err == nil, err
	}}
}

// fileString returns the first non-empty value among keys, so an empty
// idle_app still lets app through. Keys that are all empty are an error.
func fileString(keys ...string) source[string] {
	return source[string]{label: SourceFile, lookup: func(_ Env, file File) (string, string, bool, error) {
		empty := ""
		for _, key := range keys {
			raw, present := file[key]
			if !present || raw == nil {
				continue
			}
			s, ok := raw.(string)
			if !ok {
				return "", "", false, errorf("%s must be a non-empty string if provided", key)
			}
			if strings.TrimSpace(s) == "" {
				if empty == "" {
					empty = key
				}
				continue
			}
			return strings.TrimSpace(s), "", true, nil
		}
		if empty != "" {
			return "", "", false, errorf("%s must be a non-empty string if provided", empty)
		}
		return "", "", false, nil
	}}
}

func filePositiveInt(key string) source[int] {
	return source[int]{label: SourceFile, lookup: func(_ Env, file File) (int, string, bool, error) {
		raw, present := file[key]
		if !present || raw == nil {
			return 0, "", false, nil
		}
		v, ok := asInt(raw)
		if !ok || v <= 0 {
			return 0, "", false, errorf("%s must be a positive integer", key)
		}
		return v, "", true, nil
	}}
}

var runnerDeviceIdleTimeout = regexp.MustCompile(`^RUNNER_DEVICE_(\d+)_IDLE_TIMEOUT$`)

var (
	idleAppSources = []source[string]{
		envString(EnvIdleApp),
		envString(EnvIdleAppLegacy),
		fileString("idle_app", "app"),
	}

	pollIntervalSources = []source[int]{
		envPositiveInt(EnvPollInterval),
		envPositiveInt(EnvPollIntervalLegacy),
		filePositiveInt("poll_interval_seconds"),
	}

	idleTimeoutSources = []source[int]{
		envPositiveInt(EnvIdleTimeout),
		envPositiveInt(EnvIdleTimeoutLegacy),
		firstIndexedEnvInt(runnerDeviceIdleTimeout),
		filePositiveInt("idle_timeout_seconds"),
	}

	logLevelSources = []source[string]{
		envString(EnvLogLevel),
		fileString("log_level"),
	}

	logFileSources = []source[string]{
		envString(EnvLogFile),
		fileString("log_file"),
	}

	logMaxSizeSources = []source[int]{
		envPositiveInt(EnvLogMaxSizeMB),
		filePositiveInt(FieldLogMaxSizeMB),
	}

	httpAddrSources = []source[string]{
		envString(EnvHTTPAddr),
		fileString("http_addr"),
	}
)

// Resolve merges an optional decoded config file with the environment.
// file may be nil for env-only mode.
func Resolve(file File, env Env) (*Resolved, error) {
	if env == nil {
		env = Env{}
	}
	r := &Resolved{
		PollInterval: DefaultPollInterval,
		LogLevel:     DefaultLogLevel,
		Sources:      make(map[string]string),
	}

	idleApp, label, ok, err := first(env, file, idleAppSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldIdleApp] = sourceOr(label, ok)
	r.IdleApp = idleApp

	poll, label, ok, err := first(env, file, pollIntervalSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldPollInterval] = sourceOr(label, ok)
	if ok {
		if poll > MaxPollInterval {
			return nil, errorf("%s from %s must be at most %d seconds, got %d", FieldPollInterval, label, MaxPollInterval, poll)
		}
		r.PollInterval = poll
	}

	timeout, label, ok, err := first(env, file, idleTimeoutSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldIdleTimeout] = sourceOr(label, ok)
	if ok {
		r.IdleTimeout = &timeout
	}

	level, label, ok, err := first(env, file, logLevelSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldLogLevel] = sourceOr(label, ok)
	if ok {
		r.LogLevel = strings.ToLower(level)
	}

	logFile, label, ok, err := first(env, file, logFileSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldLogFile] = sourceOr(label, ok)
	r.LogFile = logFile

	maxSize, label, ok, err := first(env, file, logMaxSizeSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldLogMaxSizeMB] = sourceOr(label, ok)
	r.LogMaxSizeMB = maxSize

	httpAddr, label, ok, err := first(env, file, httpAddrSources)
	if err != nil {
		return nil, err
	}
	r.Sources[FieldHTTPAddr] = sourceOr(label, ok)
	r.HTTPAddr = httpAddr

	devices, label, err := resolveDevices(env, file, r.IdleApp)
	if err != nil {
		return nil, err
	}
	r.Devices = devices
	r.Sources[FieldDevices] = label

	mqtt, label, err := resolveMQTT(env, file)
	if err != nil {
		return nil, err
	}
	r.MQTT = mqtt
	r.Sources[FieldMQTT] = label

	return r, nil
}

func sourceOr(label string, ok bool) string {
	if ok {
		return label
	}
	return SourceDefault
}

func parsePositiveInt(raw, name string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errorf("%s must be an integer: %w", name, err)
	}
	if v <= 0 {
		return 0, errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// parseBool accepts the usual spellings; anything else is an error.
func parseBool(raw, name string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, errorf("%s must be one of: 1, 0, true, false, yes, no, on, off", name)
	}
}

// asInt accepts YAML integers only. Booleans and floats are rejected.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
