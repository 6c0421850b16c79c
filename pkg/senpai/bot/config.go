// Package bot is the composition root for Senpai: it wires the identity
// store, persona catalog, memory retriever, completion client, and Discord
// channel into the response pipeline, and owns delivery (chunking, apology
// fallback, typing indicator, presence rotation).
package bot

import (
	"github.com/akinomura/senpai/pkg/senpai/channels/discord"
)

// Config holds all bot configuration.
type Config struct {
	// Persona is the name of the active persona card.
	Persona string `yaml:"persona"`

	// PersonasDir is the directory holding <name>.json persona cards.
	PersonasDir string `yaml:"personas_dir"`

	// Model configures the completion backend.
	Model ModelConfig `yaml:"model"`

	// Discord configures the Discord channel.
	Discord discord.Config `yaml:"discord"`

	// Database configures the sqlite store shared by identity and memory.
	Database DatabaseConfig `yaml:"database"`

	// Memory configures long-term memory retrieval.
	Memory MemoryConfig `yaml:"memory"`

	// History configures short-term context.
	History HistoryConfig `yaml:"history"`

	// Presence configures the rotating status job.
	Presence PresenceConfig `yaml:"presence"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig configures the LLM backend.
type ModelConfig struct {
	// Name is the Gemini model name (e.g. "gemini-2.0-flash").
	Name string `yaml:"name"`

	// APIKey is the Gemini API key. Prefer the keyring or the
	// SENPAI_API_KEY / GEMINI_API_KEY environment variables over storing
	// it here.
	APIKey string `yaml:"api_key"`

	// TimeoutSeconds bounds a single completion call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DatabaseConfig configures persistence.
type DatabaseConfig struct {
	// Path is the sqlite database file path.
	Path string `yaml:"path"`
}

// MemoryConfig configures the long-term memory retriever.
type MemoryConfig struct {
	// Backend selects the retriever: "sqlite" or "static".
	Backend string `yaml:"backend"`

	// MaxResults caps memories per query.
	MaxResults int `yaml:"max_results"`

	// StaticEntries are the canned memories served by the static backend.
	StaticEntries []string `yaml:"static_entries"`
}

// HistoryConfig configures short-term context.
type HistoryConfig struct {
	// Limit is how many prior messages feed the transcript.
	Limit int `yaml:"limit"`
}

// PresenceConfig configures the rotating status job.
type PresenceConfig struct {
	// Enabled turns the rotation on/off.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression (supports "@every 10m" style too).
	Schedule string `yaml:"schedule"`

	// Statuses are the status lines cycled through.
	Statuses []string `yaml:"statuses"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default bot configuration.
func DefaultConfig() *Config {
	return &Config{
		Persona:     "miko",
		PersonasDir: "./personas",
		Model: ModelConfig{
			Name:           "gemini-2.0-flash",
			TimeoutSeconds: 60,
		},
		Discord: discord.DefaultConfig(),
		Database: DatabaseConfig{
			Path: "./data/senpai.db",
		},
		Memory: MemoryConfig{
			Backend:    "sqlite",
			MaxResults: 5,
		},
		History: HistoryConfig{
			Limit: 10,
		},
		Presence: PresenceConfig{
			Enabled:  false,
			Schedule: "@every 15m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
