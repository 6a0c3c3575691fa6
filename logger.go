package main

import (
	"fmt"
	"os"

	"github.com/leighmacdonald/watchdog/internal/watchdog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func MustCreateLogger(settings *watchdog.Settings) *zap.Logger {
	var loggingConfig zap.Config

	switch settings.RunMode {
	case watchdog.ModeProduction:
		loggingConfig = zap.NewProductionConfig()
		loggingConfig.DisableCaller = true
	case watchdog.ModeDebug:
		loggingConfig = zap.NewDevelopmentConfig()
		loggingConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case watchdog.ModeTest:
		return zap.NewNop()
	default:
		panic(fmt.Sprintf("Unknown run mode: %s", settings.RunMode))
	}

	if settings.DebugLogEnabled {
		if _, errStat := os.Stat(settings.LogFilePath()); errStat == nil {
			if err := os.Remove(settings.LogFilePath()); err != nil {
				panic(fmt.Sprintf("Failed to remove log file: %v", err))
			}
		}

		loggingConfig.OutputPaths = append(loggingConfig.OutputPaths, settings.LogFilePath())
	}

	level, errLevel := zap.ParseAtomicLevel(settings.LogLevel)
	if errLevel != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", errLevel))
	}

	loggingConfig.Level.SetLevel(level.Level())

	l, errLogger := loggingConfig.Build()
	if errLogger != nil {
		panic("Failed to create log config")
	}

	return l
}
