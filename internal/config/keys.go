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
		key: "backend.base_url", typ: kString, env: "CAMPUSCHAT_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.timeout_seconds", typ: kInt, env: "CAMPUSCHAT_BACKEND_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Backend.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Backend.TimeoutSeconds },
	},
	{
		key: "server.port", typ: kInt, env: "CAMPUSCHAT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.required_api_key", typ: kString, env: "CAMPUSCHAT_SERVER_REQUIRED_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.RequiredAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.RequiredAPIKey },
	},
	{
		key: "proxy.groq_api_key", typ: kString, env: "CAMPUSCHAT_GROQ_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.GroqAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.GroqAPIKey },
	},
	{
		key: "proxy.model", typ: kString, env: "CAMPUSCHAT_PROXY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CAMPUSCHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "rate_limit.enabled", typ: kBool, env: "CAMPUSCHAT_RATE_LIMIT_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.RateLimit.Enabled },
	},
	{
		key: "rate_limit.requests_per_minute", typ: kInt, env: "CAMPUSCHAT_RATE_LIMIT_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.RequestsPerMinute },
	},
	{
		key: "cache.size", typ: kInt, env: "CAMPUSCHAT_CACHE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Cache.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.Size },
	},
	{
		key: "cache.ttl_minutes", typ: kInt, env: "CAMPUSCHAT_CACHE_TTL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTLMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.TTLMinutes },
	},
	{
		key: "log.level", typ: kString, env: "CAMPUSCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
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
		}
	}
}
