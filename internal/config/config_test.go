package config

import (
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"STORAGE_CONNECTION_STRING": "UseDevelopmentStorage=true",
		"AUTH0_TEST_MODE":           "1",
		"TEST_JWT_SECRET":           "secret",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.StorageBackend != BackendTables || cfg.TasksTable != "Tasks" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReloadDebounce != 250*time.Millisecond || cfg.CacheTTL != 30*time.Second || cfg.SessionIdleTTL != 15*time.Minute {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.ChangesChannel != "tasks-changes" || cfg.Redis != nil {
		t.Fatalf("unexpected push config: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"STORAGE_BACKEND":              "Postgres",
		"DATABASE_URL":                 "postgres://localhost/board",
		"FUNCTIONS_CUSTOMHANDLER_PORT": "7071",
		"RELOAD_DEBOUNCE":              "1s",
		"DEBUG":                        "true",
		"REDIS_CONNECTION_STRING":      "redis://:pw@localhost:6380/2",
		"AUTH0_DOMAIN":                 "example.auth0.com",
		"AUTH0_AUDIENCE":               "board",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != BackendPostgres || cfg.ListenAddr != ":7071" || !cfg.Debug {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ReloadDebounce != time.Second {
		t.Fatalf("unexpected debounce %v", cfg.ReloadDebounce)
	}
	if cfg.Redis == nil || cfg.Redis.Addr != "localhost:6380" || cfg.Redis.DB != 2 || cfg.Redis.Password != "pw" {
		t.Fatalf("unexpected redis options: %+v", cfg.Redis)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"missing storage", map[string]string{"AUTH0_TEST_MODE": "1", "TEST_JWT_SECRET": "s"}, "STORAGE_CONNECTION_STRING"},
		{"bad backend", map[string]string{"STORAGE_BACKEND": "mongo"}, "STORAGE_BACKEND"},
		{"bad duration", map[string]string{"STORAGE_CONNECTION_STRING": "x", "CACHE_TTL": "soon"}, "CACHE_TTL"},
		{"missing secret", map[string]string{"STORAGE_CONNECTION_STRING": "x", "AUTH0_TEST_MODE": "1"}, "TEST_JWT_SECRET"},
		{"missing auth0", map[string]string{"STORAGE_CONNECTION_STRING": "x"}, "Auth0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestParseRedisAzureStyle(t *testing.T) {
	opts := ParseRedis("cache.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if opts.Addr != "cache.redis.cache.windows.net:6380" {
		t.Fatalf("unexpected addr %s", opts.Addr)
	}
	if opts.Password != "abc=" {
		t.Fatalf("unexpected password %s", opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS to be enabled")
	}
}

func TestStorageFromEnvSkipsServingChecks(t *testing.T) {
	cfg, err := StorageFromEnv(env(map[string]string{"DATABASE_URL": "postgres://localhost/board"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/board" || cfg.TasksTable != "Tasks" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := StorageFromEnv(env(map[string]string{"CACHE_TTL": "soon"})); err == nil {
		t.Fatal("expected invalid duration to still fail")
	}
}
