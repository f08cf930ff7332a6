package logger

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger.
// It is safe to call multiple times; later calls overwrite previous settings.
func Init() {
	configure(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// configure applies output, level and format; unknown levels fall back to info.
func configure(out io.Writer, levelStr, format string) {
	log.SetOutput(out)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// Configure is Init with an explicit writer, used by command line tools that log to stderr.
func Configure(out io.Writer, level, format string) {
	configure(out, level, format)
}
