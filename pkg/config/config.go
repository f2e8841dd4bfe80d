/*
Package config manages TOML config for docserve.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Shards ShardsConfig `toml:"shards"`
	Server ServerConfig `toml:"server"`
	CLI    CliConfig    `toml:"cli"`
}

// EngineConfig has query pipeline options.
type EngineConfig struct {
	MinQuery   int `toml:"min_query"`
	MaxQuery   int `toml:"max_query"`
	MaxResults int `toml:"max_results"`
	DebounceMs int `toml:"debounce_ms"`
}

// ShardsConfig describes where shards live and how keys map onto them.
type ShardsConfig struct {
	// Backend is one of "dir", "http" or "badger".
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
	// Pattern names a shard resource; "{key}" is replaced by the shard key.
	Pattern    string `toml:"pattern"`
	Format     string `toml:"format"`
	URL        string `toml:"url"`
	BadgerPath string `toml:"badger_path"`

	// Partition is "prefix" or "table".
	Partition     string `toml:"partition"`
	PrefixWidth   int    `toml:"prefix_width"`
	TableCategory string `toml:"table_category"`
	TableChars    string `toml:"table_chars"`

	// CacheSize caps the number of cached shards; 0 keeps every shard.
	CacheSize   int      `toml:"cache_size"`
	Preload     []string `toml:"preload"`
	WarmWorkers int      `toml:"warm_workers"`
}

// ServerConfig has IPC server options.
type ServerConfig struct {
	RateLimit int `toml:"rate_limit"`
	Burst     int `toml:"burst"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultLimit  int  `toml:"default_limit"`
	ShowSignature bool `toml:"show_signature"`
}

// Debounce returns the session debounce window.
func (e EngineConfig) Debounce() time.Duration {
	return time.Duration(e.DebounceMs) * time.Millisecond
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.ExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", "docserve")
	if utils.WritableDir(primaryPath) == nil {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "docserve")
	if utils.WritableDir(macOSPath) == nil {
		return macOSPath, nil
	}
	execDir, err := utils.ExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/docserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MinQuery:   1,
			MaxQuery:   128,
			MaxResults: 50,
			DebounceMs: 40,
		},
		Shards: ShardsConfig{
			Backend:       "dir",
			Dir:           "data",
			Pattern:       "{key}.msgpack",
			Format:        "msgpack",
			Partition:     "prefix",
			PrefixWidth:   1,
			TableCategory: "functions",
			Preload:       []string{},
			WarmWorkers:   4,
		},
		Server: ServerConfig{
			RateLimit: 200,
			Burst:     50,
		},
		CLI: CliConfig{
			DefaultLimit:  20,
			ShowSignature: true,
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file. A file that does not parse as a whole
// still contributes every section that does.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse attempts to parse a TOML file
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(section, &config.Engine)
	}
	if section, ok := utils.ExtractSection(tempConfig, "shards"); ok {
		extractShardsConfig(section, &config.Shards)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractInt64(data, "min_query"); ok {
		engine.MinQuery = val
	}
	if val, ok := utils.ExtractInt64(data, "max_query"); ok {
		engine.MaxQuery = val
	}
	if val, ok := utils.ExtractInt64(data, "max_results"); ok {
		engine.MaxResults = val
	}
	if val, ok := utils.ExtractInt64(data, "debounce_ms"); ok {
		engine.DebounceMs = val
	}
}

func extractShardsConfig(data map[string]any, shards *ShardsConfig) {
	strs := map[string]*string{
		"backend":        &shards.Backend,
		"dir":            &shards.Dir,
		"pattern":        &shards.Pattern,
		"format":         &shards.Format,
		"url":            &shards.URL,
		"badger_path":    &shards.BadgerPath,
		"partition":      &shards.Partition,
		"table_category": &shards.TableCategory,
		"table_chars":    &shards.TableChars,
	}
	for key, dst := range strs {
		if val, ok := utils.ExtractString(data, key); ok {
			*dst = val
		}
	}
	if val, ok := utils.ExtractInt64(data, "prefix_width"); ok {
		shards.PrefixWidth = val
	}
	if val, ok := utils.ExtractInt64(data, "cache_size"); ok {
		shards.CacheSize = val
	}
	if val, ok := utils.ExtractInt64(data, "warm_workers"); ok {
		shards.WarmWorkers = val
	}
	if val, ok := utils.ExtractStrings(data, "preload"); ok {
		shards.Preload = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "rate_limit"); ok {
		server.RateLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "burst"); ok {
		server.Burst = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		cli.DefaultLimit = val
	}
	if val, ok := utils.ExtractBool(data, "show_signature"); ok {
		cli.ShowSignature = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(defaultPath), 0o755); err != nil {
		return err
	}
	return utils.SaveTOMLFile(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		return abs
	}
	return configPath
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
