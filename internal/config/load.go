package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/firestick-minder/internal/logger"
)

// Load reads the YAML file at path, if there is one, and resolves it against
// env. An empty path falls back to FIRESTICK_MINDER_CONFIG. A path that is
// unset, missing, or a directory means env-only mode rather than an error.
func Load(path string, env Env, log logger.Logger) (*Resolved, error) {
	if path == "" {
		path, _ = env.get(EnvConfigPath)
	}

	file, loaded, err := readFile(path, log)
	if err != nil {
		return nil, err
	}

	r, err := Resolve(file, env)
	if err != nil {
		return nil, err
	}
	if loaded {
		r.ConfigPath = path
	}
	return r, nil
}

func readFile(path string, log logger.Logger) (File, bool, error) {
	if path == "" {
		log.Infof("no %s set; using env-only configuration", EnvConfigPath)
		return nil, false, nil
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warnf("config file %s not found; using env-only configuration", path)
		return nil, false, nil
	case err != nil:
		return nil, false, errorf("stat config %s: %w", path, err)
	case info.IsDir():
		log.Warnf("config path %s is a directory; ignoring YAML and using env-only configuration", path)
		return nil, false, nil
	case !info.Mode().IsRegular():
		return nil, false, errorf("config path %s is not a regular file", path)
	}

	// #nosec G304 - the path comes from the operator (flag or env var)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, errorf("read config %s: %w", path, err)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, false, err
	}
	return file, true, nil
}

// Parse decodes a YAML document into a File. An empty document is an empty
// file, not an error.
func Parse(data []byte) (File, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errorf("failed to parse YAML config: %w", err)
	}
	if len(node.Content) == 0 {
		return File{}, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return File{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, errorf("top-level YAML config must be a mapping")
	}

	var file File
	if err := node.Decode(&file); err != nil {
		return nil, errorf("failed to decode YAML config: %w", err)
	}
	if file == nil {
		file = File{}
	}
	return file, nil
}
