package config

import (
	"fmt"
	"strings"
)

// resolveMQTT starts from the file's mqtt section and lets environment
// variables override it field by field. FSM_MQTT_ENABLED=false wins over
// everything; without a host telemetry stays off.
func resolveMQTT(env Env, file File) (*MQTT, string, error) {
	cfg := MQTT{Port: DefaultMQTTPort, TopicPrefix: DefaultMQTTTopicPrefix}
	label := SourceDefault

	if raw, present := file["mqtt"]; present && raw != nil {
		section, ok := raw.(map[string]interface{})
		if !ok {
			return nil, "", errorf("mqtt section must be a mapping if present")
		}
		if err := applyFileMQTT(&cfg, section); err != nil {
			return nil, "", err
		}
		label = SourceFile
	}

	if raw, ok := env.get(EnvMQTTEnabled); ok {
		enabled, err := parseBool(raw, EnvMQTTEnabled)
		if err != nil {
			return nil, "", err
		}
		if !enabled {
			return nil, SourceEnvDisabled, nil
		}
		label = SourceEnv
	}

	if v, ok := env.get(EnvMQTTHost); ok {
		cfg.Host = v
		label = SourceEnv
	}
	if v, ok := env.get(EnvMQTTPort); ok {
		port, err := parsePositiveInt(v, EnvMQTTPort)
		if err != nil {
			return nil, "", err
		}
		cfg.Port = port
		label = SourceEnv
	}
	if v, ok := env.get(EnvMQTTTopicPrefix); ok {
		cfg.TopicPrefix = v
		label = SourceEnv
	}
	if v, ok := env.get(EnvMQTTUsername); ok {
		cfg.Username = v
		label = SourceEnv
	}
	if v, ok := env.get(EnvMQTTPassword); ok {
		cfg.Password = v
		label = SourceEnv
	}

	if cfg.Host == "" {
		return nil, SourceDefault, nil
	}

	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.TopicPrefix == "" {
		return nil, "", errorf("mqtt.topic_prefix must be a non-empty string")
	}

	return &cfg, label, nil
}

func applyFileMQTT(cfg *MQTT, section map[string]interface{}) error {
	if v, ok := section["host"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return errorf("mqtt.host must be a string")
		}
		cfg.Host = strings.TrimSpace(s)
	}
	if v, ok := section["port"]; ok && v != nil {
		port, ok := asInt(v)
		if !ok || port <= 0 {
			return errorf("mqtt.port must be a positive integer")
		}
		cfg.Port = port
	}
	if v, ok := section["topic_prefix"]; ok && v != nil {
		s, ok := v.(string)
		if !ok || s == "" {
			return errorf("mqtt.topic_prefix must be a non-empty string")
		}
		cfg.TopicPrefix = s
	}
	for key, dst := range map[string]*string{"username": &cfg.Username, "password": &cfg.Password} {
		v, ok := section[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return errorf("mqtt.%s must be a string", key)
		}
		*dst = s
	}
	return nil
}

// String is used in log lines; it hides the MQTT password.
func (m MQTT) String() string {
	user := m.Username
	if m.Password != "" {
		user += ":***"
	}
	if user != "" {
		user += "@"
	}
	return fmt.Sprintf("%s%s:%d (prefix %s)", user, m.Host, m.Port, m.TopicPrefix)
}
