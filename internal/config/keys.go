package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CARDSHOP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "CARDSHOP_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "CARDSHOP_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CARDSHOP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "inventory.path", typ: kString, env: "CARDSHOP_INVENTORY_PATH",
		apply:   func(cfg *Config, v any) { cfg.Inventory.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Inventory.Path },
	},
	{
		key: "guard.rate_limit", typ: kInt, env: "CARDSHOP_GUARD_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Guard.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Guard.RateLimit },
	},
	{
		key: "guard.rate_window_seconds", typ: kInt, env: "CARDSHOP_GUARD_RATE_WINDOW_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Guard.RateWindowSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Guard.RateWindowSeconds },
	},
	{
		key: "guard.max_message_len", typ: kInt, env: "CARDSHOP_GUARD_MAX_MESSAGE_LEN",
		apply:   func(cfg *Config, v any) { cfg.Guard.MaxMessageLen = v.(int) },
		extract: func(cfg Config) any { return cfg.Guard.MaxMessageLen },
	},
	{
		key: "guard.max_turns", typ: kInt, env: "CARDSHOP_GUARD_MAX_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Guard.MaxTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Guard.MaxTurns },
	},
	{
		key: "guard.min_score", typ: kFloat, env: "CARDSHOP_GUARD_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Guard.MinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Guard.MinScore },
	},
	{
		key: "guard.generate_timeout_seconds", typ: kInt, env: "CARDSHOP_GUARD_GENERATE_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Guard.GenerateTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Guard.GenerateTimeoutSeconds },
	},
	{
		key: "log.level", typ: kString, env: "CARDSHOP_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.admin_token", typ: kString, env: "CARDSHOP_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.API.AdminToken },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
