// Package logging wraps log/slog with a console + rotating file setup and
// package-level helpers usable before initialization.
package logging

import (
	"log/slog"
	"os"

	"github.com/giygas/herbolaria-api/config"
)

type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingWriter
}

var DefaultLoggingService *LoggingService

// InitLogger initializes a console-only logger when logDir is empty, or a
// console + weekly rotating file logger otherwise.
func InitLogger(logDir string) {
	InitLoggerWithConfig(logDir, config.EnvDevelopment, "info", 4, 100*1024*1024)
}

// InitLoggerWithConfig initializes the global logger from configuration values
func InitLoggerWithConfig(logDir string, env config.Environment, logLevel string, retentionWeeks int, maxFileSize int64) {
	consoleLevel := GetConsoleLogLevel(env, logLevel, os.Getenv("VERBOSE_TESTS") != "")
	service := &LoggingService{}

	if logDir != "" {
		file, err := NewRotatingWriter(logDir, retentionWeeks, maxFileSize)
		if err != nil {
			slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("Failed to initialize log file, logging to console only", "error", err)
		} else {
			service.file = file
		}
	}

	service.Logger = newLogger(consoleLevel, parseLogLevel(logLevel), service.file)

	if DefaultLoggingService != nil {
		_ = DefaultLoggingService.Close()
	}
	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
}

// Close releases the log file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Close releases the global logger's file
func Close() error {
	return DefaultLoggingService.Close()
}

func logger(level slog.Level) *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		// Fallback to console logger if not initialized
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return DefaultLoggingService.Logger
}

func Info(msg string, args ...any) {
	logger(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger(slog.LevelDebug).Debug(msg, args...)
}
