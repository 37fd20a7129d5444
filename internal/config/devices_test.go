package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevicePrecedence(t *testing.T) {
	structured := oneDeviceEnv()
	indexed := Env{"FSM_DEVICE_1_HOST": "10.1.1.1", "FSM_DEVICE_1_IDLE_APP": "com.idx"}
	shorthand := Env{"RUNNER_DEVICES": "SH=10.3.3.3", "MINDER_APP": "com.sh"}
	file := fileWithDevice(nil)

	tests := []struct {
		name       string
		file       File
		env        Env
		wantName   string
		wantSource string
	}{
		{"structured beats everything", file, merge(structured, indexed, shorthand), "LR", SourceEnvStructured},
		{"indexed beats file", file, merge(indexed, shorthand), "device_1", SourceEnvIndexed},
		{"file beats shorthand", file, shorthand, "den", SourceFile},
		{"shorthand last", nil, shorthand, "SH", EnvShorthandDevices},
		{"empty file list falls through", File{"devices": []interface{}{}}, shorthand, "SH", EnvShorthandDevices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(tt.file, tt.env)
			require.NoError(t, err)
			require.Len(t, r.Devices, 1)
			assert.Equal(t, tt.wantName, r.Devices[0].Name)
			assert.Equal(t, tt.wantSource, r.Sources[FieldDevices])
		})
	}
}

func TestIndexedDevicesBothPrefixes(t *testing.T) {
	env := Env{
		"RUNNER_DEVICE_2_IP":       "10.0.0.2",
		"RUNNER_DEVICE_2_NAME":     "bedroom",
		"RUNNER_DEVICE_2_IDLE_APP": "com.runner",
		"FSM_DEVICE_1_HOST":        "10.0.0.1",
		"FSM_DEVICE_1_IDLE_APP":    "com.fsm/.Main",
		"FSM_DEVICE_1_ADB_PORT":    "5557",
		// Same index in both generations: FSM wins for HOST, RUNNER adds NAME.
		"RUNNER_DEVICE_10_HOST": "10.0.0.99",
		"RUNNER_DEVICE_10_NAME": "attic",
		"FSM_DEVICE_10_HOST":    "10.0.0.10",
		// Only a timeout: does not create a device.
		"RUNNER_DEVICE_7_IDLE_TIMEOUT": "30",
		"MINDER_APP":                   "com.global",
	}

	r, err := Resolve(nil, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"device_1", "bedroom", "attic"}, r.DeviceNames())

	d1, ok := r.Device("device_1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", d1.Host)
	assert.Equal(t, 5557, d1.Port)
	assert.Equal(t, "com.fsm/.Main", d1.IdleComponent)

	attic, _ := r.Device("attic")
	assert.Equal(t, "10.0.0.10", attic.Host)
	assert.Equal(t, "com.global", attic.IdleComponent)

	assert.Equal(t, 30, *r.IdleTimeout)
	assert.Equal(t, "RUNNER_DEVICE_7_IDLE_TIMEOUT", r.Sources[FieldIdleTimeout])
}

func TestIndexedDeviceWithoutHostFails(t *testing.T) {
	_, err := Resolve(nil, Env{"FSM_DEVICE_1_NAME": "nohost", "MINDER_APP": "com.x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HOST or IP")
}

func TestShorthandDevicesWithIdleApp(t *testing.T) {
	env := Env{
		"RUNNER_DEVICES": "LR=192.168.30.51:5555, BR=192.168.30.52 ,10.0.0.3:5600",
		"MINDER_APP":     "com.snapwood.nfolio",
	}
	r, err := Resolve(nil, env)
	require.NoError(t, err)

	require.Len(t, r.Devices, 3)
	assert.Equal(t, "LR", r.Devices[0].Name)
	assert.Equal(t, "192.168.30.51", r.Devices[0].Host)
	assert.Equal(t, 5555, r.Devices[0].Port)
	assert.Equal(t, "com.snapwood.nfolio", r.Devices[0].IdleComponent)
	assert.Equal(t, "BR", r.Devices[1].Name)
	assert.Equal(t, DefaultADBPort, r.Devices[1].Port)
	assert.Equal(t, "device_2", r.Devices[2].Name)
	assert.Equal(t, 5600, r.Devices[2].Port)
}

func TestShorthandBadPort(t *testing.T) {
	_, err := Resolve(nil, Env{"RUNNER_DEVICES": "LR=10.0.0.1:abc", "MINDER_APP": "com.x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNNER_DEVICES")
}

func TestDeviceWithoutIdleAppFails(t *testing.T) {
	_, err := Resolve(nil, Env{"FIRESTICK_MINDER_DEVICE_LR_HOST": "10.0.0.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `device "LR" has no idle app`)
}

func TestDeviceWithoutHostFails(t *testing.T) {
	_, err := Resolve(nil, Env{"FIRESTICK_MINDER_DEVICE_LR_APP": "com.x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a valid host")
}

func TestFileDeviceValidation(t *testing.T) {
	tests := []struct {
		name   string
		device interface{}
		want   string
	}{
		{"not a mapping", "tv", "must be a mapping"},
		{"no host", map[string]interface{}{"name": "a", "app": "com.x"}, "missing a valid host"},
		{"bad host type", map[string]interface{}{"name": "a", "host": []interface{}{"x"}, "app": "com.x"}, "valid host"},
		{"bad port", map[string]interface{}{"host": "h", "app": "com.x", "adb_port": -1}, "adb_port"},
		{"home packages not list", map[string]interface{}{"host": "h", "app": "com.x", "home_packages": "launcher"}, "home_packages"},
		{"home package empty", map[string]interface{}{"host": "h", "app": "com.x", "home_packages": []interface{}{""}}, "home_packages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(File{"devices": []interface{}{tt.device}}, Env{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFileDeviceNumericHost(t *testing.T) {
	file := File{"devices": []interface{}{
		map[string]interface{}{"name": "n", "host": 3232235777, "app": "com.x"},
	}}
	r, err := Resolve(file, Env{})
	require.NoError(t, err)
	assert.Equal(t, "3232235777", r.Devices[0].Host)
}

func TestDuplicateDeviceNamesRejected(t *testing.T) {
	_, err := Resolve(nil, Env{"RUNNER_DEVICES": "LR=10.0.0.1,LR=10.0.0.2", "MINDER_APP": "com.x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate device name")
}

func TestMQTTResolution(t *testing.T) {
	fileMQTT := File{"mqtt": map[string]interface{}{
		"host":         "file-broker",
		"port":         1884,
		"topic_prefix": "tv",
	}}

	tests := []struct {
		name       string
		file       File
		env        Env
		wantNil    bool
		wantHost   string
		wantPort   int
		wantPrefix string
		wantSource string
	}{
		{name: "none", wantNil: true, wantSource: SourceDefault},
		{name: "file", file: fileMQTT, wantHost: "file-broker", wantPort: 1884, wantPrefix: "tv", wantSource: SourceFile},
		{name: "env overrides host only", file: fileMQTT, env: Env{"FSM_MQTT_HOST": "env-broker"},
			wantHost: "env-broker", wantPort: 1884, wantPrefix: "tv", wantSource: SourceEnv},
		{name: "env only", env: Env{"FSM_MQTT_HOST": "env-broker", "FSM_MQTT_TOPIC_PREFIX": "a/b/"},
			wantHost: "env-broker", wantPort: 1883, wantPrefix: "a/b", wantSource: SourceEnv},
		{name: "disabled beats file", file: fileMQTT, env: Env{"FSM_MQTT_ENABLED": "off"},
			wantNil: true, wantSource: SourceEnvDisabled},
		{name: "enabled without host stays off", env: Env{"FSM_MQTT_ENABLED": "true"},
			wantNil: true, wantSource: SourceDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(merge2(fileWithDevice(nil), tt.file), tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSource, r.Sources[FieldMQTT])
			if tt.wantNil {
				assert.Nil(t, r.MQTT)
				return
			}
			require.NotNil(t, r.MQTT)
			assert.Equal(t, tt.wantHost, r.MQTT.Host)
			assert.Equal(t, tt.wantPort, r.MQTT.Port)
			assert.Equal(t, tt.wantPrefix, r.MQTT.TopicPrefix)
		})
	}
}

func TestMQTTCredentialsFromEnv(t *testing.T) {
	r, err := Resolve(nil, merge(oneDeviceEnv(), Env{
		"FSM_MQTT_HOST":     "b",
		"FSM_MQTT_PORT":     "8883",
		"FSM_MQTT_USERNAME": "u",
		"FSM_MQTT_PASSWORD": "p",
	}))
	require.NoError(t, err)
	require.NotNil(t, r.MQTT)
	assert.Equal(t, 8883, r.MQTT.Port)
	assert.Equal(t, "u", r.MQTT.Username)
	assert.Equal(t, "p", r.MQTT.Password)
	assert.Equal(t, "u:***@b:8883 (prefix home/firestick)", r.MQTT.String())
}

func merge2(a, b File) File {
	out := File{}
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
