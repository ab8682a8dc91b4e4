package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"nimbus/internal/constants"
)

// AuditConfig holds user-configurable audit trail settings.
type AuditConfig struct {
	MaxLogSizeBytes int64 `yaml:"max_log_size_bytes"`
	PurgePercentage int   `yaml:"purge_percentage"`
}

// Config holds all application configuration.
type Config struct {
	WorkingDirectory string      `yaml:"working_directory"`
	Port             int         `yaml:"port"`
	AccountID        string      `yaml:"account_id"`
	DefaultRegion    string      `yaml:"default_region"`
	LogLevel         string      `yaml:"log_level"`
	AccessValidation *bool       `yaml:"access_validation"` // nil = enabled
	Audit            AuditConfig `yaml:"audit"`
}

// AccessValidationEnabled reports whether inbound requests must be
// authenticated and authorized. Defaults to true when unset.
func (cfg *Config) AccessValidationEnabled() bool {
	return cfg.AccessValidation == nil || *cfg.AccessValidation
}

// ApplyDefaults fills zero-valued fields with constant defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = constants.DefaultPort
	}
	if cfg.AccountID == "" {
		cfg.AccountID = constants.DefaultAccountID
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = constants.DefaultRegion
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = constants.DefaultLogLevel
	}
	if cfg.Audit.MaxLogSizeBytes == 0 {
		cfg.Audit.MaxLogSizeBytes = constants.DefaultAuditMaxLogSizeBytes
	}
	if cfg.Audit.PurgePercentage == 0 {
		cfg.Audit.PurgePercentage = constants.DefaultAuditPurgePercentage
	}
}

// GetConfigDir returns the directory holding the config file.
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return constants.ConfigDir
	}
	return filepath.Join(home, constants.ConfigDir)
}

// LoadConfig reads the config file, creating a default one if absent.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(filepath.Join(GetConfigDir(), constants.ConfigFile))
}

// LoadConfigFrom reads the config at an explicit path.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.ApplyDefaults()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig writes the config to the given path, creating directories as needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// InitializeWorkingDirectory creates the working directory layout.
func InitializeWorkingDirectory(workDir string) error {
	for _, dir := range []string{
		workDir,
		filepath.Join(workDir, constants.InternalDir),
		filepath.Join(workDir, constants.LogsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
