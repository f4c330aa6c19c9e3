// Package config reads service settings from the environment, loading a
// .env file first when one exists.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	BackendTables   = "tables"
	BackendPostgres = "postgres"
)

type Config struct {
	ListenAddr string
	Debug      bool

	StorageBackend   string
	ConnectionString string
	TasksTable       string
	ProjectsTable    string
	ProfilesTable    string
	MembersTable     string
	ChangeFeedQueue  string
	DatabaseURL      string

	Redis          *redis.Options
	ChangesChannel string
	CacheTTL       time.Duration

	ReloadDebounce time.Duration
	SessionIdleTTL time.Duration

	Auth0Domain   string
	Auth0Audience string
	AuthTestMode  bool
	TestJWTSecret string
	JWKSCacheTTL  time.Duration

	AIGatewayURL   string
	AIGatewayKey   string
	AIGatewayModel string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// LoadStorage reads only the storage settings, for tools that provision
// storage without serving requests.
func LoadStorage() (Config, error) {
	_ = godotenv.Load()
	return StorageFromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	return parse(lookup, true)
}

// StorageFromEnv is FromEnv without the backend selection and auth checks.
func StorageFromEnv(lookup func(string) (string, bool)) (Config, error) {
	return parse(lookup, false)
}

func parse(lookup func(string) (string, bool), serving bool) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	cfg := Config{
		ListenAddr:       ":8080",
		StorageBackend:   strings.ToLower(get("STORAGE_BACKEND", BackendTables)),
		ConnectionString: get("STORAGE_CONNECTION_STRING", ""),
		TasksTable:       get("TASKS_TABLE", "Tasks"),
		ProjectsTable:    get("PROJECTS_TABLE", "Projects"),
		ProfilesTable:    get("PROFILES_TABLE", "Profiles"),
		MembersTable:     get("MEMBERS_TABLE", "ProjectMembers"),
		ChangeFeedQueue:  get("CHANGE_FEED_QUEUE", ""),
		DatabaseURL:      get("DATABASE_URL", ""),
		ChangesChannel:   get("CHANGES_CHANNEL", "tasks-changes"),
		Auth0Domain:      get("AUTH0_DOMAIN", ""),
		Auth0Audience:    get("AUTH0_AUDIENCE", ""),
		AuthTestMode:     get("AUTH0_TEST_MODE", "") == "1",
		TestJWTSecret:    get("TEST_JWT_SECRET", ""),
		AIGatewayURL:     get("AI_GATEWAY_URL", ""),
		AIGatewayKey:     get("AI_GATEWAY_KEY", ""),
		AIGatewayModel:   get("AI_GATEWAY_MODEL", ""),
	}
	if port := get("FUNCTIONS_CUSTOMHANDLER_PORT", ""); port != "" {
		cfg.ListenAddr = ":" + port
	}
	cfg.ListenAddr = get("LISTEN_ADDR", cfg.ListenAddr)

	if v := get("DEBUG", ""); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEBUG: %w", err)
		}
		cfg.Debug = dbg
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"CACHE_TTL", 30 * time.Second, &cfg.CacheTTL},
		{"RELOAD_DEBOUNCE", 250 * time.Millisecond, &cfg.ReloadDebounce},
		{"SESSION_IDLE_TTL", 15 * time.Minute, &cfg.SessionIdleTTL},
		{"JWKS_CACHE_TTL", 15 * time.Minute, &cfg.JWKSCacheTTL},
	}
	for _, d := range durations {
		*d.dst = d.def
		raw := get(d.key, "")
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", d.key, raw)
		}
		*d.dst = parsed
	}

	if !serving {
		return cfg, nil
	}

	switch cfg.StorageBackend {
	case BackendTables:
		if cfg.ConnectionString == "" {
			return Config{}, fmt.Errorf("missing storage config: STORAGE_CONNECTION_STRING")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("missing storage config: DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_BACKEND: %q", cfg.StorageBackend)
	}

	if raw := get("REDIS_CONNECTION_STRING", ""); raw != "" {
		cfg.Redis = ParseRedis(raw)
	}

	if cfg.AuthTestMode {
		if cfg.TestJWTSecret == "" {
			return Config{}, fmt.Errorf("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
	} else if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
		return Config{}, fmt.Errorf("missing Auth0 config")
	}
	return cfg, nil
}

// ParseRedis accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func ParseRedis(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
