// Configuration loading from YAML files, with secret resolution via the
// OS keyring, environment variables, and .env files.

package bot

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "senpai"

	// keyringAPIKey is the keyring entry for the Gemini API key.
	keyringAPIKey = "api_key"

	// keyringDiscordToken is the keyring entry for the Discord bot token.
	keyringDiscordToken = "discord_token"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files, expands environment variables, and
// resolves secrets via keyring → env → config value.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := ParseConfig([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	ResolveSecrets(cfg)
	checkFilePermissions(path)

	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config, starting from defaults and
// overlaying values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML with restricted permissions.
// Secrets already stored in the keyring are not written out.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	if GetKeyring(keyringAPIKey) != "" {
		sanitized.Model.APIKey = ""
	}
	if GetKeyring(keyringDiscordToken) != "" {
		sanitized.Discord.Token = ""
	}

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"senpai.yaml",
		"senpai.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ResolveSecrets fills in config secrets that are empty or placeholders,
// trying the OS keyring first and environment variables second.
func ResolveSecrets(cfg *Config) {
	if cfg.Model.APIKey == "" || isEnvReference(cfg.Model.APIKey) {
		if key := GetKeyring(keyringAPIKey); key != "" {
			cfg.Model.APIKey = key
		} else if key := os.Getenv("SENPAI_API_KEY"); key != "" {
			cfg.Model.APIKey = key
		} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.Model.APIKey = key
		}
	}

	if cfg.Discord.Token == "" || isEnvReference(cfg.Discord.Token) {
		if tok := GetKeyring(keyringDiscordToken); tok != "" {
			cfg.Discord.Token = tok
		} else if tok := os.Getenv("SENPAI_DISCORD_TOKEN"); tok != "" {
			cfg.Discord.Token = tok
		} else if tok := os.Getenv("DISCORD_TOKEN"); tok != "" {
			cfg.Discord.Token = tok
		}
	}
}

// ---------- Keyring ----------

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring. Empty if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__senpai_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// APIKeyKeyringName and DiscordTokenKeyringName expose the entry names for
// the setup command.
const (
	APIKeyKeyringName       = keyringAPIKey
	DiscordTokenKeyringName = keyringDiscordToken
)

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
// godotenv.Load does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and $VAR references with their values,
// leaving unset references untouched.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// isEnvReference checks if a string is an environment variable reference.
func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}

// checkFilePermissions warns if the config file is group/world-readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
