package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/providers"
	"github.com/lessonforge/server/internal/agent/repo"
	logx "github.com/lessonforge/server/pkg/logger"
)

const (
	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// buildRegistry registers every backend that has credentials configured.
// Defaults point at the pipeline's configured providers, so a missing key
// surfaces here as a registry build error.
func buildRegistry(ctx context.Context, cfg *AppConfig) (*providers.Registry, error) {
	b := providers.NewRegistryBuilder()
	if cfg.Gemini.APIKey != "" {
		gm, err := providers.NewGeminiModels(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		b.Agent(providerGemini, gm.Agent).
			Text(providerGemini, gm.Text).
			Image(providerGemini, gm.Image)
	}
	if cfg.OpenAI.APIKey != "" {
		oa := providers.NewOpenAI(cfg.OpenAI)
		b.Agent(providerOpenAI, oa.Agent()).
			Text(providerOpenAI, oa.Agent()).
			Image(providerOpenAI, oa.Images()).
			Narration(providerOpenAI, oa.Speech())
	}
	return b.
		Default(providers.CapabilityStructuredAgent, cfg.Pipeline.AgentProvider).
		Default(providers.CapabilityTextCompletion, cfg.Pipeline.AgentProvider).
		Default(providers.CapabilityImageGeneration, cfg.Pipeline.ImageProvider).
		Default(providers.CapabilityNarrationGeneration, cfg.Pipeline.NarrationProvider).
		Build()
}

// openConversations returns nil when no Redis URL is configured.
func openConversations(ctx context.Context, cfg *AppConfig) (model.ConversationRepository, func(), error) {
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		return nil, func() {}, nil
	}
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise Redis client: %w", err)
	}
	logx.Debug().Msg("Connected to Redis successfully")
	return repo.NewRedisConversationRepository(rdb, cfg.Conversation.TTL), func() { _ = rdb.Close() }, nil
}

// openDatabase returns nil when DATABASE_DRIVER is "none".
func openDatabase(cfg *AppConfig) (*gorm.DB, func(), error) {
	if strings.EqualFold(cfg.Database.Driver, "none") {
		return nil, func() {}, nil
	}
	db, err := repo.OpenDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closer, nil
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
