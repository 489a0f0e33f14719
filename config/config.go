// Package config loads testwatch.yml.
//
// Configuration is layered: the global file in the testwatch config
// directory forms the base and the nearest project file found by walking up
// from the working directory is merged over it. Both may be YAML or TOML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/paths"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// ProjectFileNames are searched in order in every directory.
var ProjectFileNames = []string{
	"testwatch.yml",
	"testwatch.yaml",
	".testwatch.yml",
	".testwatch.yaml",
	"testwatch.toml",
	".testwatch.toml",
}

// Load reads a single configuration file. Relative paths in it resolve
// against the file's directory.
func Load(path string) (*Config, error) {
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	return build(raw, filepath.Dir(path))
}

// LoadDefault loads the layered configuration for the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the
// given directory:
// 1. Global config ($XDG_CONFIG_HOME/testwatch/config.yml) - base layer
// 2. Project config (testwatch.yml) - overrides global
//
// Neither file is required; without a project file the root is startDir.
func LoadFrom(startDir string) (*Config, error) {
	logger := logging.NewLogger("config")
	raw := map[string]interface{}{}
	baseDir := startDir

	if globalPath := FindGlobalConfig(); globalPath != "" {
		logger.WithField("path", globalPath).Debug("Loading global configuration")
		global, err := readRaw(globalPath)
		if err != nil {
			return nil, err
		}
		raw = mergeMaps(raw, global)
	}

	projectPath, err := FindConfigFile(startDir)
	switch {
	case err == nil:
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		project, err := readRaw(projectPath)
		if err != nil {
			return nil, err
		}
		raw = mergeMaps(raw, project)
		baseDir = filepath.Dir(projectPath)
	case errors.Is(err, errors.ErrCodeConfigNotFound):
		logger.WithField("dir", startDir).Debug("No project configuration, using defaults")
	default:
		return nil, err
	}

	cfg, err := build(raw, baseDir)
	if err != nil {
		return nil, err
	}
	if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// LoadFromBytes parses a YAML configuration.
func LoadFromBytes(data []byte, baseDir string) (*Config, error) {
	raw, err := parseRaw(data, ".yml")
	if err != nil {
		return nil, err
	}
	return build(raw, baseDir)
}

// build validates raw against the schema, decodes it and applies defaults.
func build(raw map[string]interface{}, baseDir string) (*Config, error) {
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create mapstructure decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	cfg.SetDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readRaw(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}
	raw, err := parseRaw(data, filepath.Ext(path))
	if err != nil {
		if te, ok := err.(*errors.TestwatchError); ok {
			te.WithDetail("path", path)
		}
		return nil, err
	}
	return raw, nil
}

// parseRaw decodes YAML or TOML (by extension) into a generic map after
// expanding ${VAR} references.
func parseRaw(data []byte, ext string) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))
	raw := map[string]interface{}{}

	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.NewDecoder(bytes.NewReader(expanded)).Decode(&raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, nil
}

// FindConfigFile searches for a project configuration file from startDir up
// to the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to resolve start directory")
	}
	for {
		for _, name := range ProjectFileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// FindGlobalConfig returns the global config file, or "" if there is none.
func FindGlobalConfig() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	for _, name := range []string{"config.yml", "config.yaml", "config.toml"} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Describe returns a one-line summary for logs.
func (c *Config) Describe() string {
	return fmt.Sprintf("root=%s socket=%s events=%s", c.Workspace.Root, c.Daemon.Socket, c.Results.EventsFile)
}
