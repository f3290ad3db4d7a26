package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("HOST", "")
	t.Setenv("CONTAINER_NAME_PREFIX", "")
	t.Setenv("BRIDGE_REPORT_INTERVAL_SECS", "")
	t.Setenv("TELEGRAM_TIMEOUT_SECS", "")

	cfg := Load()
	if cfg.Port != 7170 {
		t.Errorf("Port default = %d, want 7170", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host default = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.ContainerNamePrefix != "tmuxdeck-" {
		t.Errorf("ContainerNamePrefix default = %q", cfg.ContainerNamePrefix)
	}
	if cfg.ReportIntervalSecs != 5 {
		t.Errorf("ReportIntervalSecs default = %d, want 5", cfg.ReportIntervalSecs)
	}
	if cfg.TelegramTimeoutSecs != 60 {
		t.Errorf("TelegramTimeoutSecs default = %d, want 60", cfg.TelegramTimeoutSecs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("DOCKER_SOCKET", "/var/run/docker.sock")

	cfg := Load()
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.DockerSocket != "/var/run/docker.sock" {
		t.Errorf("DockerSocket = %q", cfg.DockerSocket)
	}
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 7170 {
		t.Errorf("expected default on unparseable PORT, got %d", cfg.Port)
	}
}
