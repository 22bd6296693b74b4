package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/attic/internal/paths"
	"github.com/mesh-intelligence/attic/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyDataDir = "data_dir"
	cfgKeyLevel   = "log.level"
	cfgKeyFormat  = "log.format"
	cfgKeyWindow  = "unarchive_window"
)

// configFile is the structure written to config.yaml on first run.
type configFile struct {
	DataDir         string                          `yaml:"data_dir,omitempty"`
	Log             types.LogConfig                 `yaml:"log"`
	Databases       map[string]types.DatabaseConfig `yaml:"databases"`
	UnarchiveWindow string                          `yaml:"unarchive_window"`
	Schema          []types.EntityType              `yaml:"schema"`
}

// settings is what the commands need: the validated config plus the
// resolved directories.
type settings struct {
	configDir string
	dataDir   string
	config    types.Config
}

// writeConfigIfMissing creates config.yaml with a single sqlite database
// under dataDir. An existing file is left alone.
func writeConfigIfMissing(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	cfg := configFile{
		Log: types.LogConfig{Level: "info", Format: "console"},
		Databases: map[string]types.DatabaseConfig{
			types.DefaultAlias: {Driver: types.DriverSQLite, DSN: paths.DatabaseFile(dataDir)},
		},
		UnarchiveWindow: types.DefaultUnarchiveWindow.String(),
		Schema:          []types.EntityType{},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# attic configuration. Declare entity types under schema.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// loadSettings resolves directories, writes a default config.yaml on first
// run, and reads it with viper. A missing config file is not an error.
func loadSettings() (*settings, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyLevel, "info")
	v.SetDefault(cfgKeyFormat, "console")
	v.SetDefault(cfgKeyWindow, types.DefaultUnarchiveWindow)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	if err := writeConfigIfMissing(paths.ConfigFile(configDir), dataDir); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	if v.ConfigFileUsed() == "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &settings{configDir: configDir, dataDir: dataDir, config: cfg}, nil
}
