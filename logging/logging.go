// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Format string

const (
	ConsoleFormat Format = "console"
	JSONFormat    Format = "json"
)

type Config struct {
	Production bool
	Level      string
	Format     Format
	// OutputPaths replaces stderr when set.
	OutputPaths []string
}

// ZapConfig translates c into a zap.Config.
func (c Config) ZapConfig() (zap.Config, error) {
	var conf zap.Config
	if c.Production {
		conf = zap.NewProductionConfig()
	} else {
		conf = zap.NewDevelopmentConfig()
	}

	encConfig := conf.EncoderConfig
	switch c.Format {
	case JSONFormat:
		encConfig.MessageKey = "msg"
		encConfig.TimeKey = "ts"
		encConfig.LevelKey = "level"
		encConfig.NameKey = "logger"
		encConfig.CallerKey = "caller"
		encConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		conf.Encoding = "json"
	case ConsoleFormat, "":
		encConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		conf.Encoding = "console"
	default:
		return conf, fmt.Errorf("unknown log format %q", c.Format)
	}
	conf.EncoderConfig = encConfig

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return conf, fmt.Errorf("log level: %w", err)
		}
		conf.Level = level
	}
	if len(c.OutputPaths) > 0 {
		conf.OutputPaths = c.OutputPaths
	}
	return conf, nil
}

// New builds a logger from c.
func New(c Config) (*zap.Logger, error) {
	conf, err := c.ZapConfig()
	if err != nil {
		return nil, err
	}
	return conf.Build()
}
