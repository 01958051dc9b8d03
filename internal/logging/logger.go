// Package logging wraps zap the way the teacher's pkg/logger does:
// environment-aware construction, a request-scoped child logger, and a
// single process-wide instance created once at startup and injected
// everywhere else (never looked up through a global).
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures logger construction.
type Options struct {
	Format      string // "json" or "text"
	Level       string // "debug", "info", "warn", "error"
	ServiceName string
}

// New builds a *zap.Logger per Options.
func New(opts Options) (*zap.Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(opts.Format, "json") {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.Encoding = "console"
	}

	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))
	if opts.ServiceName != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": opts.ServiceName}
	}

	logger, err := zapCfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ForSession returns a child logger scoped to one WebSocket session.
func ForSession(base *zap.Logger, sessionID string) *zap.Logger {
	return base.With(zap.String("session_id", sessionID))
}

// ForTask returns a child logger scoped to one extraction task.
func ForTask(base *zap.Logger, campaignID, taskID string) *zap.Logger {
	return base.With(zap.String("campaign_id", campaignID), zap.String("task_id", taskID))
}
