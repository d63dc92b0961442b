package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"SERVER_PORT", "PORT", "RESOLUTION_DEBOUNCE_MS", "RESOLUTION_SWEEP_SCHEDULE", "VERIFICATION_REFRESH_DELAY_MS", "INTENT_EVENT_EXCHANGE"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.ResolutionDebounceMS != 500 {
		t.Fatalf("expected default ResolutionDebounceMS 500, got %d", cfg.ResolutionDebounceMS)
	}
	if cfg.VerificationRefreshMS != 2000 {
		t.Fatalf("expected default VerificationRefreshMS 2000, got %d", cfg.VerificationRefreshMS)
	}
	if cfg.ResolutionSweepSchedule != "@every 1m" {
		t.Fatalf("expected default sweep schedule, got %q", cfg.ResolutionSweepSchedule)
	}
	if cfg.IntentEventExchange != "treegar.events" {
		t.Fatalf("expected default intent exchange, got %q", cfg.IntentEventExchange)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NonPositiveDebounceCoercedToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RESOLUTION_DEBOUNCE_MS", "-50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ResolutionDebounceMS != 500 {
		t.Fatalf("expected coerced debounce of 500, got %d", cfg.ResolutionDebounceMS)
	}
}

func TestLoadConfig_ReadsMeridianSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MERIDIAN_API_BASE_URL", "https://api.meridian.example")
	setEnvWithCleanup(t, "MERIDIAN_API_KEY", "mk_test_123")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MeridianAPIBaseURL != "https://api.meridian.example" {
		t.Fatalf("unexpected MeridianAPIBaseURL %q", cfg.MeridianAPIBaseURL)
	}
	if cfg.MeridianAPIKey != "mk_test_123" {
		t.Fatalf("unexpected MeridianAPIKey %q", cfg.MeridianAPIKey)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
