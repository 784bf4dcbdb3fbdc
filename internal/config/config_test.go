package config

import "testing"

func TestDefaultsMatchesEmbeddedSchema(t *testing.T) {
	t.Parallel()

	settings, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults returned error: %v", err)
	}

	if settings.Compositor.BufSize != 4096 {
		t.Errorf("expected default buf_size 4096, got %d", settings.Compositor.BufSize)
	}
	if settings.Compositor.LookaheadSec != 2.0 {
		t.Errorf("expected default lookahead_sec 2.0, got %v", settings.Compositor.LookaheadSec)
	}
	if settings.Compositor.ActiveThreshold != 3 {
		t.Errorf("expected default active_threshold 3, got %d", settings.Compositor.ActiveThreshold)
	}
	if settings.SegStore.CacheLimitBytes != 268435456 {
		t.Errorf("expected default cache_limit_bytes 268435456, got %d", settings.SegStore.CacheLimitBytes)
	}
	if settings.Logging.Level != "info" {
		t.Errorf("expected default logging level 'info', got %q", settings.Logging.Level)
	}
	if settings.MQTT.Enabled {
		t.Error("expected MQTT disabled by default")
	}
	if settings.Sentry.Enabled {
		t.Error("expected Sentry disabled by default")
	}
}

func TestLoadFallsBackToDefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	settings, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if settings.Compositor.BufSize != 4096 {
		t.Errorf("expected fallback default buf_size 4096, got %d", settings.Compositor.BufSize)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RADMIX_LOGGING_LEVEL", "debug")

	settings, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if settings.Logging.Level != "debug" {
		t.Errorf("expected env override to set logging level 'debug', got %q", settings.Logging.Level)
	}
}
