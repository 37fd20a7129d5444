package config

import (
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Device source labels recorded under Sources["devices"].
const (
	SourceEnvStructured = "env_structured"
	SourceEnvIndexed    = "env_indexed"
)

// rawDevice is device data before normalization. Zero values mean "not given".
type rawDevice struct {
	name         string
	host         string
	port         int
	homePackages []string
	component    string
}

// deviceSource yields the raw device list from one place, or nil when that
// place configures no devices.
type deviceSource struct {
	label string
	load  func(env Env, file File) ([]rawDevice, error)
}

// Device sources in priority order. The first one that yields at least one
// device wins outright; devices are never merged across sources.
var deviceSources = []deviceSource{
	{label: SourceEnvStructured, load: structuredEnvDevices},
	{label: SourceEnvIndexed, load: indexedEnvDevices},
	{label: SourceFile, load: fileDevices},
	{label: EnvShorthandDevices, load: shorthandEnvDevices},
}

func resolveDevices(env Env, file File, idleApp string) ([]Device, string, error) {
	for _, src := range deviceSources {
		raws, err := src.load(env, file)
		if err != nil {
			return nil, "", err
		}
		if len(raws) == 0 {
			continue
		}

		devices := make([]Device, 0, len(raws))
		seen := make(map[string]bool, len(raws))
		for i, raw := range raws {
			d, err := normalizeDevice(raw, i, idleApp)
			if err != nil {
				return nil, "", err
			}
			if seen[d.Name] {
				return nil, "", errorf("duplicate device name %q", d.Name)
			}
			seen[d.Name] = true
			devices = append(devices, d)
		}
		return devices, src.label, nil
	}

	return nil, "", errorf("no devices configured: set %s<NAME>_HOST, FSM_DEVICE_<n>_HOST, a devices list in the config file, or %s",
		EnvStructuredDevicePrefix, EnvShorthandDevices)
}

func normalizeDevice(raw rawDevice, idx int, idleApp string) (Device, error) {
	name := raw.name
	if name == "" {
		name = fmt.Sprintf("device_%d", idx)
	}

	if raw.host == "" {
		return Device{}, errorf("device %q is missing a valid host", name)
	}

	component := raw.component
	if component == "" {
		component = idleApp
	}
	if component == "" {
		return Device{}, errorf("device %q has no idle app: set slideshow_component/app or %s", name, EnvIdleApp)
	}

	port := raw.port
	if port == 0 {
		port = DefaultADBPort
	}
	if port < 0 || port > 65535 {
		return Device{}, errorf("device %q has invalid adb port %d", name, port)
	}

	pkgs := raw.homePackages
	if len(pkgs) == 0 {
		pkgs = DefaultHomePackages
	}
	home := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		home[p] = struct{}{}
	}

	return Device{
		Name:          name,
		Host:          raw.host,
		Port:          port,
		HomePackages:  home,
		IdleComponent: component,
	}, nil
}

// structuredDeviceVar matches FIRESTICK_MINDER_DEVICE_<NAME>_<FIELD>.
var structuredDeviceVar = regexp.MustCompile(`^` + EnvStructuredDevicePrefix + `(.+)_(HOST|APP|ADB_PORT)$`)

func structuredEnvDevices(env Env, _ File) ([]rawDevice, error) {
	byName := make(map[string]*rawDevice)
	for _, key := range sortedKeys(env) {
		m := structuredDeviceVar.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		value, ok := env.get(key)
		if !ok {
			continue
		}
		name, field := m[1], m[2]
		d, exists := byName[name]
		if !exists {
			d = &rawDevice{name: name}
			byName[name] = d
		}
		switch field {
		case "HOST":
			d.host = value
		case "APP":
			d.component = value
		case "ADB_PORT":
			port, err := parsePositiveInt(value, key)
			if err != nil {
				return nil, err
			}
			d.port = port
		}
	}

	out := make([]rawDevice, 0, len(byName))
	for _, name := range sortedKeys(byName) {
		out = append(out, *byName[name])
	}
	return out, nil
}

// Indexed device variables. FSM_ is the newer prefix and wins when both
// generations set the same field for the same index.
var indexedDevicePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^RUNNER_DEVICE_(\d+)_([A-Z_]+)$`),
	regexp.MustCompile(`^FSM_DEVICE_(\d+)_([A-Z_]+)$`),
}

func indexedEnvDevices(env Env, _ File) ([]rawDevice, error) {
	byIndex := make(map[int]*rawDevice)
	keys := sortedKeys(env)

	// Apply older prefixes first so newer ones overwrite.
	for _, pattern := range indexedDevicePrefixes {
		for _, key := range keys {
			m := pattern.FindStringSubmatch(key)
			if m == nil {
				continue
			}
			value, ok := env.get(key)
			if !ok {
				continue
			}
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, errorf("%s: bad device index: %w", key, err)
			}

			d := byIndex[idx]
			if d == nil {
				d = &rawDevice{}
			}
			switch m[2] {
			case "HOST", "IP":
				d.host = value
			case "NAME":
				d.name = value
			case "IDLE_APP":
				d.component = value
			case "ADB_PORT":
				port, err := parsePositiveInt(value, key)
				if err != nil {
					return nil, err
				}
				d.port = port
			default:
				// IDLE_TIMEOUT and unknown suffixes do not describe the device.
				continue
			}
			byIndex[idx] = d
		}
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]rawDevice, 0, len(indexes))
	for _, idx := range indexes {
		d := *byIndex[idx]
		if d.name == "" {
			d.name = fmt.Sprintf("device_%d", idx)
		}
		if d.host == "" {
			return nil, errorf("indexed env device %d requires a HOST or IP entry", idx)
		}
		out = append(out, d)
	}
	return out, nil
}

func fileDevices(_ Env, file File) ([]rawDevice, error) {
	raw, present := file["devices"]
	if !present || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errorf("devices must be a list")
	}

	out := make([]rawDevice, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errorf("device entry at index %d must be a mapping", i)
		}
		d, err := fileDevice(m, i)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func fileDevice(m map[string]interface{}, idx int) (rawDevice, error) {
	var d rawDevice
	label := fmt.Sprintf("devices[%d]", idx)

	if v, ok := m["name"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return d, errorf("%s.name must be a string", label)
		}
		d.name = strings.TrimSpace(s)
		if d.name != "" {
			label = fmt.Sprintf("device %q", d.name)
		}
	}

	switch h := m["host"].(type) {
	case nil:
	case string:
		d.host = strings.TrimSpace(h)
	case int:
		d.host = strconv.Itoa(h)
	default:
		return d, errorf("%s is missing a valid host field", label)
	}

	for _, key := range []string{"slideshow_component", "app"} {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return d, errorf("%s.%s must be a string", label, key)
		}
		d.component = strings.TrimSpace(s)
		break
	}

	if v, ok := m["adb_port"]; ok && v != nil {
		port, ok := asInt(v)
		if !ok || port <= 0 {
			return d, errorf("%s.adb_port must be a positive integer", label)
		}
		d.port = port
	}

	if v, ok := m["home_packages"]; ok && v != nil {
		list, ok := v.([]interface{})
		if !ok {
			return d, errorf("%s must have a home_packages list", label)
		}
		for _, p := range list {
			s, ok := p.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return d, errorf("%s.home_packages entries must be non-empty strings", label)
			}
			d.homePackages = append(d.homePackages, strings.TrimSpace(s))
		}
	}

	return d, nil
}

// shorthandEnvDevices parses RUNNER_DEVICES="LR=192.168.1.5:5555,BR=192.168.1.6".
func shorthandEnvDevices(env Env, _ File) ([]rawDevice, error) {
	raw, ok := env.get(EnvShorthandDevices)
	if !ok {
		return nil, nil
	}

	var out []rawDevice
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		var d rawDevice
		hostPort := entry
		if name, rest, found := strings.Cut(entry, "="); found {
			d.name = strings.TrimSpace(name)
			hostPort = strings.TrimSpace(rest)
		}

		host, port, err := splitHostPort(hostPort)
		if err != nil {
			return nil, errorf("%s entry %q: %w", EnvShorthandDevices, entry, err)
		}
		d.host = host
		d.port = port
		out = append(out, d)
	}
	return out, nil
}

// splitHostPort accepts "host" or "host:port"; port 0 means default.
func splitHostPort(s string) (string, int, error) {
	if !strings.Contains(s, ":") {
		return s, 0, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
