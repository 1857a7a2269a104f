package app

import (
	"strings"

	"github.com/charlesng35/lockgate/pkg/logger"
)

// ConfigureLogging initialises the global logger from server settings, defaulting to info/json.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(cfg.LogFormat)
	if format == "" {
		format = "json"
	}
	return logger.InitWithFormat(level, format)
}
