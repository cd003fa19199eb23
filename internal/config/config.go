package config

import (
	"fmt"
	"time"

	"chaos-stories/internal/service"
	"chaos-stories/internal/transition"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервера Chaos Stories
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"SERVER_PORT" default:"8085"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// История. Пустой путь означает встроенную историю
	StoryPath string `envconfig:"STORY_PATH"`

	// Тайминги переходов
	FadeOutDuration time.Duration `envconfig:"FADE_OUT_DURATION" default:"150ms"`
	FadeInDuration  time.Duration `envconfig:"FADE_IN_DURATION" default:"150ms"`
	PreloadCeiling  time.Duration `envconfig:"PRELOAD_CEILING" default:"200ms"`
	OutcomeHold     time.Duration `envconfig:"OUTCOME_HOLD" default:"3s"`

	// Ассеты: ASSET_BASE_URL важнее ASSET_DIR, без обоих загрузка не выполняется
	AssetBaseURL string        `envconfig:"ASSET_BASE_URL"`
	AssetDir     string        `envconfig:"ASSET_DIR"`
	AssetTimeout time.Duration `envconfig:"ASSET_TIMEOUT" default:"2s"`

	// Сессии
	SessionIdleTTL         time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SessionJanitorInterval time.Duration `envconfig:"SESSION_JANITOR_INTERVAL" default:"1m"`
	MaxSessions            int           `envconfig:"MAX_SESSIONS" default:"1000"`

	// Фиксированный сид для воспроизводимых прохождений, 0 = случайный
	ChaosSeed uint64 `envconfig:"CHAOS_SEED" default:"0"`

	// Настройки RabbitMQ (опционально)
	RabbitMQURL            string `envconfig:"RABBITMQ_URL"`
	PlaythroughEventsQueue string `envconfig:"PLAYTHROUGH_EVENTS_QUEUE" default:"playthrough_events"`

	// Трассировка (опционально)
	OTelEndpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string  `envconfig:"OTEL_SERVICE_NAME" default:"chaos-stories"`
	OTelSampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации chaos-stories: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, d := range map[string]time.Duration{
		"FADE_OUT_DURATION": c.FadeOutDuration,
		"FADE_IN_DURATION":  c.FadeInDuration,
		"PRELOAD_CEILING":   c.PreloadCeiling,
		"OUTCOME_HOLD":      c.OutcomeHold,
		"ASSET_TIMEOUT":     c.AssetTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("MAX_SESSIONS must not be negative, got %d", c.MaxSessions)
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be within [0, 1], got %v", c.OTelSampleRatio)
	}
	if c.SessionJanitorInterval <= 0 {
		return fmt.Errorf("SESSION_JANITOR_INTERVAL must be positive, got %s", c.SessionJanitorInterval)
	}
	return nil
}

// LoopOptions returns the per-playthrough timings.
func (c *Config) LoopOptions() service.LoopOptions {
	return service.LoopOptions{
		Transition: transition.Options{
			FadeOut:        c.FadeOutDuration,
			FadeIn:         c.FadeInDuration,
			PreloadCeiling: c.PreloadCeiling,
		},
		OutcomeHold:  c.OutcomeHold,
		AssetTimeout: c.AssetTimeout,
	}
}

// SessionConfig returns the session host settings.
func (c *Config) SessionConfig() service.SessionConfig {
	return service.SessionConfig{
		IdleTTL:     c.SessionIdleTTL,
		MaxSessions: c.MaxSessions,
		Loop:        c.LoopOptions(),
		Seed:        c.ChaosSeed,
	}
}
