// Package config provides configuration management for Patch
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Data        DataConfig        `mapstructure:"data"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Reminder    ReminderConfig    `mapstructure:"reminder"`
	Session     SessionConfig     `mapstructure:"session"`
	Search      SearchConfig      `mapstructure:"search"`
	Weather     WeatherConfig     `mapstructure:"weather"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// DataConfig locates the persisted JSON documents
type DataConfig struct {
	Dir           string `mapstructure:"dir"`            // defaults to ~/.patch
	MemoryFile    string `mapstructure:"memory_file"`    // conversation memory
	RemindersFile string `mapstructure:"reminders_file"` // reminder ledger
	CommandFile   string `mapstructure:"command_file"`   // dashboard command queue
}

// ChatConfig configures the Ollama chat backend
type ChatConfig struct {
	ServerURL string        `mapstructure:"server_url"` // e.g., "http://localhost:11434"
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReminderConfig configures the reminder scheduler and polling loop
type ReminderConfig struct {
	MaxActive     int           `mapstructure:"max_active"`
	RetentionDays int           `mapstructure:"retention_days"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	SnoozeMinutes int           `mapstructure:"snooze_minutes"`
	PruneSpec     string        `mapstructure:"prune_spec"`   // cron spec for archive pruning
	SummarySpec   string        `mapstructure:"summary_spec"` // cron spec for the spoken daily summary
}

// SessionConfig configures the interaction loop
type SessionConfig struct {
	Mode       string `mapstructure:"mode"` // voice or chat
	MaxHistory int    `mapstructure:"max_history"`
}

// SearchConfig configures the web search collaborator
type SearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// WeatherConfig configures the weather collaborator
type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DashboardConfig configures the read-mostly web dashboard
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MaintenanceConfig configures system cleanup
type MaintenanceConfig struct {
	ScratchDir string   `mapstructure:"scratch_dir"` // where stray audio files accumulate
	CachePaths []string `mapstructure:"cache_paths"` // cleared by a total reset
	MinFreeGB  int      `mapstructure:"min_free_gb"` // disk warning threshold
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".patch")

	return &Config{
		Data: DataConfig{
			Dir:           dataDir,
			MemoryFile:    "patch_memory.json",
			RemindersFile: "patch_reminders.json",
			CommandFile:   "patch_command.json",
		},
		Chat: ChatConfig{
			ServerURL: "http://localhost:11434",
			Model:     "llama3.2:1b",
			Timeout:   120 * time.Second,
		},
		Reminder: ReminderConfig{
			MaxActive:     20,
			RetentionDays: 14,
			TickInterval:  1 * time.Second,
			SnoozeMinutes: 10,
			PruneSpec:     "0 3 * * *",
			SummarySpec:   "0 21 * * *",
		},
		Session: SessionConfig{
			Mode:       "chat",
			MaxHistory: 12,
		},
		Search: SearchConfig{
			BaseURL:    "https://html.duckduckgo.com/html",
			Timeout:    8 * time.Second,
			MaxResults: 3,
		},
		Weather: WeatherConfig{
			BaseURL: "https://wttr.in",
			Timeout: 10 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Addr:    ":5000",
		},
		Maintenance: MaintenanceConfig{
			ScratchDir: ".",
			CachePaths: []string{},
			MinFreeGB:  10,
		},
	}
}

// MemoryPath returns the absolute path of the conversation memory document
func (c *Config) MemoryPath() string {
	return filepath.Join(c.Data.Dir, c.Data.MemoryFile)
}

// RemindersPath returns the absolute path of the reminder ledger document
func (c *Config) RemindersPath() string {
	return filepath.Join(c.Data.Dir, c.Data.RemindersFile)
}

// CommandPath returns the absolute path of the dashboard command queue
func (c *Config) CommandPath() string {
	return filepath.Join(c.Data.Dir, c.Data.CommandFile)
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".patch")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("PATCH")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".patch")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("data", cfg.Data)
	viper.Set("chat", cfg.Chat)
	viper.Set("reminder", cfg.Reminder)
	viper.Set("session", cfg.Session)
	viper.Set("search", cfg.Search)
	viper.Set("weather", cfg.Weather)
	viper.Set("dashboard", cfg.Dashboard)
	viper.Set("maintenance", cfg.Maintenance)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".patch"), nil
}
