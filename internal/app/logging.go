package app

import (
	"strings"

	"github.com/router-for-me/adminpanel/internal/config"
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the logging section to the global logrus logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.JSON {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
