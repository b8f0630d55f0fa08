// Package config provides configuration management for CortexVoice
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Online       OnlineConfig       `mapstructure:"online"`
	Offline      OfflineConfig      `mapstructure:"offline"`
	Speech       SpeechConfig       `mapstructure:"speech"`
	Reminders    RemindersConfig    `mapstructure:"reminders"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// ConnectivityConfig configures the reachability poll
type ConnectivityConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	ProbeAddr    string        `mapstructure:"probe_addr"` // TCP dial target
	ProbeURL     string        `mapstructure:"probe_url"`  // HTTP GET fallback
}

// OnlineConfig configures the network-backed conversation session
type OnlineConfig struct {
	AgentURL         string        `mapstructure:"agent_url"`
	AgentID          string        `mapstructure:"agent_id"`
	APIKey           string        `mapstructure:"api_key"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ResponseTimeout  time.Duration `mapstructure:"response_timeout"`
}

// OfflineConfig configures the local recognize-respond loop
type OfflineConfig struct {
	ListenTimeout time.Duration `mapstructure:"listen_timeout"`
}

// SpeechConfig configures the TTS/STT capabilities
type SpeechConfig struct {
	// SpeakCommand is a system TTS binary ("say", "espeak"). Empty means
	// announcements go to the console.
	SpeakCommand string   `mapstructure:"speak_command"`
	SpeakArgs    []string `mapstructure:"speak_args"`
}

// RemindersConfig configures the reminder subsystem
type RemindersConfig struct {
	// StorePath is the reminder file. Empty means <config dir>/reminders.json.
	StorePath string `mapstructure:"store_path"`
	// FallbackDelay is how far out to place a reminder whose time could not
	// be parsed. Zero disables the fallback.
	FallbackDelay time.Duration `mapstructure:"fallback_delay"`
	// SweepSchedule is the cron spec for the stale-reminder sweep.
	SweepSchedule string `mapstructure:"sweep_schedule"`
	// WatchFile enables hot-reload when the store file is edited externally.
	WatchFile bool `mapstructure:"watch_file"`
}

// MetricsConfig configures the optional Prometheus exposition
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Connectivity: ConnectivityConfig{
			PollInterval: 5 * time.Second,
			ProbeTimeout: 5 * time.Second,
			ProbeAddr:    "8.8.8.8:53",
			ProbeURL:     "https://www.google.com",
		},
		Online: OnlineConfig{
			AgentURL:         "wss://api.elevenlabs.io/v1/convai/conversation",
			HandshakeTimeout: 10 * time.Second,
			ResponseTimeout:  30 * time.Second,
		},
		Offline: OfflineConfig{
			ListenTimeout: 10 * time.Second,
		},
		Speech: SpeechConfig{
			SpeakCommand: "",
		},
		Reminders: RemindersConfig{
			FallbackDelay: time.Minute,
			SweepSchedule: "@hourly",
			WatchFile:     true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9104",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("CORTEXVOICE")
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

	if cfg.Online.APIKey == "" {
		cfg.Online.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.Online.AgentID == "" {
		cfg.Online.AgentID = os.Getenv("AGENT_ID")
	}
	if cfg.Reminders.StorePath == "" {
		cfg.Reminders.StorePath = filepath.Join(configDir, "reminders.json")
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("logging", cfg.Logging)
	viper.Set("connectivity", cfg.Connectivity)
	viper.Set("online", cfg.Online)
	viper.Set("offline", cfg.Offline)
	viper.Set("speech", cfg.Speech)
	viper.Set("reminders", cfg.Reminders)
	viper.Set("metrics", cfg.Metrics)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexvoice"), nil
}
