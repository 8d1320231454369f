package cmd

import (
	"os"

	"github.com/spf13/viper"
	"github.com/theapemachine/mnemo/pkg/embedding"
	"github.com/theapemachine/mnemo/pkg/errors"
	"github.com/theapemachine/mnemo/pkg/memory"
	"github.com/theapemachine/mnemo/pkg/metrics"
	"github.com/theapemachine/mnemo/pkg/stores/memcache"
	"github.com/theapemachine/mnemo/pkg/stores/qdrant"
	"github.com/theapemachine/mnemo/pkg/stores/rediscache"
)

// components bundles everything the subcommands wire up from config.
type components struct {
	manager  *memory.Manager
	detector *memory.Detector
	metrics  *metrics.OperationMetrics
}

func buildComponents() (*components, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")

	if apiKey == "" {
		return nil, &errors.ConfigurationError{
			Field: "OPENAI_API_KEY",
			Msg:   "embedding provider credential missing",
		}
	}

	var schemas []memory.CollectionSchema

	if err := viper.UnmarshalKey("collections", &schemas); err != nil {
		return nil, &errors.ConfigurationError{Field: "collections", Msg: err.Error()}
	}

	registry, err := memory.NewRegistry(schemas...)

	if err != nil {
		return nil, err
	}

	provider := embedding.NewProvider(
		apiKey,
		embedding.WithModel(viper.GetString("openai.model")),
		embedding.WithDimension(viper.GetInt("openai.dimension")),
		embedding.WithBatchSize(viper.GetInt("openai.batch_size")),
		embedding.WithRetry(
			viper.GetInt("openai.max_attempts"),
			viper.GetDuration("openai.base_delay"),
		),
	)

	embedder := embedding.NewCache(provider)
	index := qdrant.New(viper.GetString("qdrant.endpoint"), registry)

	// Without a Redis address the working cache runs in-process.
	var cache interface {
		memory.QueryCache
		memory.HashCache
	}

	if addr := viper.GetString("redis.addr"); addr != "" {
		cache = rediscache.New(
			addr,
			rediscache.WithTTL(viper.GetDuration("redis.ttl")),
			rediscache.WithCredentials(viper.GetString("redis.password"), viper.GetInt("redis.db")),
		)
	} else {
		cache = memcache.New(viper.GetDuration("redis.ttl"))
	}

	sink := metrics.NewOperationMetrics()
	policy := memory.FallbackDisabled

	if viper.GetBool("memory.fallback") {
		policy = memory.FallbackDegrade
	}

	manager := memory.NewManager(
		registry,
		embedder,
		index,
		cache,
		memory.WithFallback(policy),
		memory.WithScoreFloor(viper.GetFloat64("memory.score_floor")),
		memory.WithCacheTTL(viper.GetDuration("memory.cache_ttl")),
		memory.WithObserver(sink),
		memory.WithOwnedDependencies(),
	)

	detector, err := memory.NewDetector(
		viper.GetString("dedup.collection"),
		memory.WithSharedHashCache(cache),
		memory.WithSemanticCheck(index, embedder),
		memory.WithSemanticThreshold(viper.GetFloat64("dedup.threshold")),
	)

	if err != nil {
		return nil, err
	}

	return &components{
		manager:  manager,
		detector: detector,
		metrics:  sink,
	}, nil
}
