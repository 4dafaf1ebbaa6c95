// Package factory builds the configured ai.GraphAIClient. It is the only
// place that decides between adapters; everything else receives the
// client as an ai.GraphAIClient.
package factory

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	oai "github.com/OFFIS-RIT/bookgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/bookgraph/pkg/ai/openai"
)

const (
	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"
)

// Config selects and configures an adapter.
type Config struct {
	Adapter string

	ChatURL  string
	ChatKey  string
	EmbedURL string
	EmbedKey string

	ExtractModel  string
	DescribeModel string
	EmbedModel    string

	ParallelRequests int
	Timeout          time.Duration
}

// ConfigFromEnv reads the AI_* variables.
func ConfigFromEnv() Config {
	return Config{
		Adapter:          util.GetEnvString("AI_ADAPTER", AdapterOpenAI),
		ChatURL:          util.GetEnv("AI_CHAT_URL"),
		ChatKey:          util.GetEnv("AI_CHAT_KEY"),
		EmbedURL:         util.GetEnv("AI_EMBED_URL"),
		EmbedKey:         util.GetEnv("AI_EMBED_KEY"),
		ExtractModel:     util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		DescribeModel:    util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),
		EmbedModel:       util.GetEnv("AI_EMBED_MODEL"),
		ParallelRequests: util.GetEnvInt("AI_PARALLEL_REQ", 4),
		Timeout:          util.GetEnvSeconds("AI_TIMEOUT_SECONDS", 2*time.Minute),
	}
}

// New returns the client for cfg.Adapter. An empty adapter means openai.
func New(cfg Config) (ai.GraphAIClient, error) {
	switch cfg.Adapter {
	case AdapterOllama:
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:   cfg.EmbedModel,
			DescriptionModel: cfg.DescribeModel,
			ExtractionModel:  cfg.ExtractModel,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelRequests),
			Timeout:               cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	case AdapterOpenAI, "":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:   cfg.EmbedModel,
			DescriptionModel: cfg.DescribeModel,
			ExtractionModel:  cfg.ExtractModel,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelRequests),
			Timeout:               cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q (want %s or %s)", cfg.Adapter, AdapterOpenAI, AdapterOllama)
	}
}
