package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SearchPaths are tried in order when no configuration file is named.
var SearchPaths = []string{
	"appsettings.json",
	filepath.Join("config", "server-config.json"),
	"config.yaml",
}

// Settings are the process level options. Defaults can be loaded via
// envdecode; command line flags override them.
type Settings struct {
	// ConfigPath names the configuration file. ENV: DATAVERSE_MCP_CONFIG
	ConfigPath string `env:"DATAVERSE_MCP_CONFIG"`
	// CurrentEnvironment overrides the configured current environment.
	// ENV: DATAVERSE_MCP_CURRENT_ENVIRONMENT
	CurrentEnvironment string `env:"DATAVERSE_MCP_CURRENT_ENVIRONMENT"`
	// LogLevel is one of debug, info, warn, error. ENV: DATAVERSE_MCP_LOG_LEVEL
	LogLevel string `env:"DATAVERSE_MCP_LOG_LEVEL,default=info"`
	// StartupCheck tests the current environment before serving.
	// ENV: DATAVERSE_MCP_STARTUP_CHECK
	StartupCheck bool `env:"DATAVERSE_MCP_STARTUP_CHECK,default=true"`
	// StartupCheckTimeout bounds the start-up connection test.
	// ENV: DATAVERSE_MCP_STARTUP_CHECK_TIMEOUT
	StartupCheckTimeout time.Duration `env:"DATAVERSE_MCP_STARTUP_CHECK_TIMEOUT,default=2m"`
}

// SettingsFromEnv decodes Settings from the process environment.
func SettingsFromEnv() (Settings, error) {
	var s Settings
	if err := envdecode.Decode(&s); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Settings{}, errors.Wrap(err, "decoding environment settings")
	}
	return s, nil
}

// ResolvePath returns the configuration file to load. An explicit path is
// returned as is; otherwise the first existing entry of SearchPaths under dir
// is used. The boolean is false when nothing was found.
func ResolvePath(dir, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	for _, candidate := range SearchPaths {
		path := filepath.Join(dir, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Load reads the configuration file at path. A path that does not exist
// yields an empty configuration; a file that cannot be parsed is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, errors.Wrapf(err, "loading config from %s", path)
	}
	return cfg, nil
}

// Parse decodes a configuration document. JSON documents go through
// encoding/json so tab indented appsettings files load; everything else is
// read as YAML.
func Parse(data []byte, isJSON bool) (*Config, error) {
	var file File
	if isJSON {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, err
		}
	}

	cfg := file.section()
	if cfg.Environments == nil {
		cfg.Environments = map[string]EnvironmentConfig{}
	}
	return cfg, nil
}
