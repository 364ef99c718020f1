package cmd

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/core"
	logx "github.com/lessonforge/server/pkg/logger"
	pkgredis "github.com/lessonforge/server/pkg/redis"
	"github.com/lessonforge/server/pkg/tracing"
)

// AppConfig defines every configurable parameter of the CLI, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"APP_ENV" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure; an empty REDIS_URL disables conversation history.
	Redis    pkgredis.Config
	Database model.DatabaseConfig
	Storage  model.StorageConfig
	Media    model.MediaConfig
	Tracing  tracing.Config

	// Providers
	Gemini model.GeminiConfig
	OpenAI model.OpenAIConfig

	Pipeline     model.PipelineConfig
	Conversation model.ConversationConfig
}

func loadConfig(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Debug().Err(err).Str("file", envFile).Msg("Could not load env file")
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
