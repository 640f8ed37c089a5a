package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite3")
	t.Setenv("DATA_DIR", "/tmp/seating")
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DatabaseURL != "file:/tmp/seating/seating.db?_foreign_keys=on" {
		t.Fatalf("unexpected sqlite DSN %q", cfg.DatabaseURL)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Fatalf("expected default lock TTL 30s, got %s", cfg.LockTTL)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":       {"STORAGE_DRIVER": "mongo"},
		"postgres without url": {"STORAGE_DRIVER": "postgres", "DATABASE_URL": ""},
		"bad whatsapp flag":    {"STORAGE_DRIVER": "memory", "WHATSAPP_ENABLED": "sometimes"},
		"bad lock ttl":         {"STORAGE_DRIVER": "memory", "SEATING_LOCK_TTL": "forever"},
		"zero lock ttl":        {"STORAGE_DRIVER": "memory", "SEATING_LOCK_TTL": "0s"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
