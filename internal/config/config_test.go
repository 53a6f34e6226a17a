package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.FrameWidth != 1280 || cfg.FrameHeight != 720 {
		t.Errorf("frame size = %dx%d", cfg.FrameWidth, cfg.FrameHeight)
	}
	if cfg.DiffThreshold != 50 || cfg.MinContourArea != 2000 {
		t.Errorf("motion defaults = %d/%d", cfg.DiffThreshold, cfg.MinContourArea)
	}
	if cfg.NotificationCooldown != 30*time.Second {
		t.Errorf("NotificationCooldown = %v", cfg.NotificationCooldown)
	}
	if cfg.AuthEnabled {
		t.Error("auth enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DIFF_THRESHOLD", "35")
	t.Setenv("CONSISTENCY_WINDOW", "1500ms")
	t.Setenv("QUIESCENCE_WINDOW", "8") // bare seconds
	t.Setenv("HARDWARE_ENCODER", "true")
	t.Setenv("DETECTOR_CONF_THRESHOLD", "0.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DiffThreshold != 35 {
		t.Errorf("DiffThreshold = %d", cfg.DiffThreshold)
	}
	if cfg.ConsistencyWindow != 1500*time.Millisecond {
		t.Errorf("ConsistencyWindow = %v", cfg.ConsistencyWindow)
	}
	if cfg.QuiescenceWindow != 8*time.Second {
		t.Errorf("QuiescenceWindow = %v", cfg.QuiescenceWindow)
	}
	if !cfg.HardwareEncoder {
		t.Error("HardwareEncoder not set")
	}
	if cfg.ConfThreshold != 0.7 {
		t.Errorf("ConfThreshold = %v", cfg.ConfThreshold)
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CAPTURE_FPS", "fast")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaptureFPS != 10 {
		t.Errorf("CaptureFPS = %d", cfg.CaptureFPS)
	}
	if cfg.MinioUseSSL {
		t.Error("MinioUseSSL = true")
	}
}

func TestDiffThresholdOutOfRangeFallsBack(t *testing.T) {
	t.Setenv("DIFF_THRESHOLD", "300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiffThreshold != 50 {
		t.Errorf("DiffThreshold = %d, want the default 50", cfg.DiffThreshold)
	}
}

func TestAuthRequiresPassword(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Fatal("auth without a password accepted")
	}

	t.Setenv("AUTH_PASSWORD", "hunter2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AuthEnabled || cfg.AuthPassword != "hunter2" {
		t.Errorf("auth config = %+v", cfg)
	}
}
