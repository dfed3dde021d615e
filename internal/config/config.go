package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Inventory InventoryConfig
	Guard     GuardConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL   string
	ChatModel string
}

type StorageConfig struct {
	DataDir string
}

type InventoryConfig struct {
	// Path is the CSV file the index loads at startup and on reload.
	Path string
}

type GuardConfig struct {
	// RateLimit is the number of messages allowed per origin per window.
	RateLimit int
	// RateWindowSeconds is the sliding window length.
	RateWindowSeconds int
	MaxMessageLen     int
	MaxTurns          int
	// MinScore is the fuzzy-match cutoff for text queries.
	MinScore float64
	// GenerateTimeoutSeconds bounds the single generative attempt.
	GenerateTimeoutSeconds int
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	// AdminToken guards the reload and transcript endpoints.
	AdminToken string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434",
			ChatModel: "llama3.2",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Inventory: InventoryConfig{
			Path: "inventory.csv",
		},
		Guard: GuardConfig{
			RateLimit:              10,
			RateWindowSeconds:      60,
			MaxMessageLen:          1000,
			MaxTurns:               20,
			MinScore:               0.4,
			GenerateTimeoutSeconds: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.derpdot.cardshop) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/cardshop/config.json
// and secrets must be provided via environment variables.
//
// Environment variables (CARDSHOP_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the admin token if still empty.
	if cfg.API.AdminToken == "" {
		if tok, err := kc.Get("cardshop", "admin_token"); err == nil && tok != "" {
			cfg.API.AdminToken = tok
		}
	}

	if cfg.API.AdminToken == "" {
		msg := "missing required config: admin token. " +
			"Set it via environment variable CARDSHOP_ADMIN_TOKEN" +
			adminTokenHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
