package config_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"testing"

	"github.com/leafline/messaging-core/internal/config"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "PROVIDER_BASE_URL", "PROVIDER_API_KEY", "PROVIDER_PUBLIC_KEY"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_MissingRequiredFieldsErrors(t *testing.T) {
	clearEnv(t)

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected an error when required fields are unset")
	}
}

func TestLoad_DefaultsAndRequiredFields(t *testing.T) {
	clearEnv(t)
	pub, _, _ := ed25519.GenerateKey(nil)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PROVIDER_BASE_URL", "https://carrier.example.com")
	t.Setenv("PROVIDER_API_KEY", "key-123")
	t.Setenv("PROVIDER_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Compliance.QuietHours.Start != "21:00" || cfg.Compliance.QuietHours.End != "08:00" {
		t.Fatalf("expected default quiet hours, got %+v", cfg.Compliance.QuietHours)
	}
	if cfg.Queue.AttemptsMax != 3 || cfg.Queue.BackoffBaseMs != 5000 {
		t.Fatalf("expected default queue retry policy, got %+v", cfg.Queue)
	}

	key, err := cfg.ProviderPublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != ed25519.PublicKeySize {
		t.Fatalf("expected a valid ed25519 public key, got %d bytes", len(key))
	}
}
