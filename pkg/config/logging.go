package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"speechcoach/pkg/errors"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ApplyLogging applies the logging configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile == "" {
		logger.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.Logging.OutputFile), 0755); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to create log directory for: %s", c.Logging.OutputFile))
	}

	logger.SetOutput(&lumberjack.Logger{
		Filename:   c.Logging.OutputFile,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	})

	return nil
}
