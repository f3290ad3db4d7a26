// Package config reads the environment-variable surface from spec §6 the
// same way cmd/kojo/main.go reads its own handful of flags: no framework,
// just os.Getenv with defaults, because the surface here is a flat list of
// scalars too small to justify a structured config library.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-driven setting the server core reads.
type Config struct {
	DataDir             string
	DockerSocket        string
	ContainerNamePrefix string
	TemplatesDir        string
	HostTmuxSocket      string
	StaticDir           string
	TelegramBotToken    string
	TelegramAllowedUsers string
	Host                string
	Port                int

	// SlackWebhookURL enables the Debug Ring's operator-alert sink (added).
	SlackWebhookURL string

	// ReportInterval is the bridge agent session_report cadence (§4.D), default 5s.
	ReportIntervalSecs int

	// TelegramTimeoutSecs is the notification fallback timer (§4.E), default 60s.
	TelegramTimeoutSecs int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load builds a Config from the process environment, applying the defaults
// the spec and the teacher's own main.go use.
func Load() *Config {
	home, _ := os.UserHomeDir()
	defaultData := home + "/.config/tmuxdeck"

	return &Config{
		DataDir:              getenv("DATA_DIR", defaultData),
		DockerSocket:         getenv("DOCKER_SOCKET", ""),
		ContainerNamePrefix:  getenv("CONTAINER_NAME_PREFIX", "tmuxdeck-"),
		TemplatesDir:         getenv("TEMPLATES_DIR", ""),
		HostTmuxSocket:       getenv("HOST_TMUX_SOCKET", ""),
		StaticDir:            getenv("STATIC_DIR", ""),
		TelegramBotToken:     getenv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAllowedUsers: getenv("TELEGRAM_ALLOWED_USERS", ""),
		Host:                 getenv("HOST", "0.0.0.0"),
		Port:                 getenvInt("PORT", 7170),
		SlackWebhookURL:      getenv("SLACK_WEBHOOK_URL", ""),
		ReportIntervalSecs:   getenvInt("BRIDGE_REPORT_INTERVAL_SECS", 5),
		TelegramTimeoutSecs:  getenvInt("TELEGRAM_TIMEOUT_SECS", 60),
	}
}
