package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := config.Load()

	if cfg.Workers != 3 {
		t.Errorf("expected default Workers=3, got %d", cfg.Workers)
	}
	if cfg.QueueCapacity != 500 {
		t.Errorf("expected default QueueCapacity=500, got %d", cfg.QueueCapacity)
	}
	if cfg.StageSizeThreshold != 26214400 {
		t.Errorf("expected default StageSizeThreshold=26214400, got %d", cfg.StageSizeThreshold)
	}
	if cfg.DHPOSearchWindow != 100*24*time.Hour {
		t.Errorf("expected default search window of 100 days, got %v", cfg.DHPOSearchWindow)
	}
	if !cfg.RefdataAutoInsert {
		t.Error("expected RefdataAutoInsert to default true")
	}
}

func TestLoadReadsFromEnv(t *testing.T) {
	os.Setenv("ENV", "test")
	os.Setenv("INGESTION_WORKERS", "7")
	os.Setenv("FETCH_STAGE_TO_DISK_FORCE", "true")
	os.Setenv("REFDATA_AUTO_INSERT", "false")
	defer func() {
		os.Unsetenv("ENV")
		os.Unsetenv("INGESTION_WORKERS")
		os.Unsetenv("FETCH_STAGE_TO_DISK_FORCE")
		os.Unsetenv("REFDATA_AUTO_INSERT")
	}()

	cfg := config.Load()
	if cfg.Env != "test" {
		t.Errorf("expected ENV=test, got %q", cfg.Env)
	}
	if cfg.Workers != 7 {
		t.Errorf("expected Workers=7, got %d", cfg.Workers)
	}
	if !cfg.StageForceDisk {
		t.Error("expected StageForceDisk=true")
	}
	if cfg.RefdataAutoInsert {
		t.Error("expected RefdataAutoInsert=false")
	}
}

func TestIsDevelopmentAndProduction(t *testing.T) {
	cfg := &config.Config{Env: "development"}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Errorf("expected development env to report IsDevelopment only")
	}
	cfg.Env = "production"
	if cfg.IsDevelopment() || !cfg.IsProduction() {
		t.Errorf("expected production env to report IsProduction only")
	}
}
