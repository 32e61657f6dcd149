// Package logging provides the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger used across every component. It defaults to JSON
// output at info level so the zero-configuration case is still usable.
var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetFormatter(&logrus.JSONFormatter{})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// Configure applies APP_ENV/LOG_LEVEL overrides. Call once at startup, after
// loading .env.
func Configure() {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	logLevel := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))

	switch {
	case logLevel != "":
		setLevelFromString(logLevel)
	case env == "production" || env == "prod":
		Log.SetLevel(logrus.WarnLevel)
	case env == "development" || env == "dev" || env == "debug":
		if env == "debug" {
			Log.SetLevel(logrus.DebugLevel)
		} else {
			Log.SetLevel(logrus.InfoLevel)
		}
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	default:
		Log.SetLevel(logrus.InfoLevel)
	}

	Log.WithFields(logrus.Fields{
		"app_env":   env,
		"log_level": Log.GetLevel().String(),
	}).Debug("logger configured")
}

func setLevelFromString(level string) {
	switch level {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "info":
		Log.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		Log.SetLevel(logrus.FatalLevel)
	case "panic":
		Log.SetLevel(logrus.PanicLevel)
	default:
		Log.SetLevel(logrus.InfoLevel)
		Log.Warnf("unknown log level %q, defaulting to info", level)
	}
}
