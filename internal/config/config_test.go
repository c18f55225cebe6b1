package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.MatchWindowBase != 50 || cfg.MatchWindowGrowth != 50 {
		t.Errorf("unexpected window defaults: base=%v growth=%v", cfg.MatchWindowBase, cfg.MatchWindowGrowth)
	}
	if cfg.GlickoTau != 0.5 {
		t.Errorf("expected tau 0.5, got %v", cfg.GlickoTau)
	}
	if cfg.GlickoMaxIterations != 100 {
		t.Errorf("expected 100 max iterations, got %d", cfg.GlickoMaxIterations)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QUEUE_STORE", "memory")
	t.Setenv("MATCH_WINDOW_GROWTH", "25.5")
	t.Setenv("AUTH_REQUIRED", "true")
	t.Setenv("GLICKO_MAX_ITERATIONS", "not-a-number")
	t.Setenv("INTERNAL_API_TOKEN", "svc")

	cfg := Load()

	if cfg.QueueStore != "memory" {
		t.Errorf("expected memory queue store, got %q", cfg.QueueStore)
	}
	if cfg.MatchWindowGrowth != 25.5 {
		t.Errorf("expected growth 25.5, got %v", cfg.MatchWindowGrowth)
	}
	if !cfg.AuthRequired {
		t.Errorf("expected auth required")
	}
	if cfg.InternalToken != "svc" {
		t.Errorf("expected internal token, got %q", cfg.InternalToken)
	}
	if cfg.GlickoMaxIterations != 100 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.GlickoMaxIterations)
	}
}
