package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultService = "chaos-stories"

// Config содержит настройки для логгера.
type Config struct {
	Level      string // debug, info, warn, error
	Encoding   string // json или console
	OutputPath string // Пусто означает stdout
	// Service становится корневым именем логгера и полем service каждой записи.
	Service string
}

// New создает корневой zap.Logger сервиса. Неизвестный уровень понижается до info,
// неизвестная кодировка до json. Консольная кодировка включает caller для локальной отладки.
func New(cfg Config) (*zap.Logger, error) {
	service := cfg.Service
	if service == "" {
		service = defaultService
	}
	console := strings.EqualFold(cfg.Encoding, "console")

	output := cfg.OutputPath
	if output == "" {
		output = "stdout"
	}

	zapConfig := zap.Config{
		Level:             parseLevel(cfg.Level),
		DisableCaller:     !console,
		DisableStacktrace: true,
		Encoding:          "json",
		EncoderConfig:     encoderConfig(console),
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields:     map[string]any{"service": service},
	}
	if console {
		zapConfig.Encoding = "console"
	}

	log, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log.Named(service), nil
}

func parseLevel(raw string) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if raw == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		// Логгера еще нет, пишем в stderr
		fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'. Error: %v\n", raw, err)
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

func encoderConfig(console bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if console {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}
