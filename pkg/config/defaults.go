package config

const (
	defaultStorageProvider = "sqlite"
	defaultVectorProvider  = "sqlite-vec"
	defaultCollection      = "engram"

	defaultEmbeddingProvider   = "hashed"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 256

	defaultAPIListen       = ":8900"
	defaultClientAPITarget = "http://localhost:8900"

	defaultMinSimilarity    = 0.3
	defaultSimilarityWeight = 0.6
	defaultRecencyWeight    = 0.25
	defaultComplexityWeight = 0.15

	defaultDuplicateThreshold = 0.85
	defaultArchiveDays        = 90

	defaultHookTimeoutSeconds = 3

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "engram.memory.events"

	defaultWatcherRateLimitSeconds = 5
	defaultWatcherMinSimilarity    = 0.5
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Search: SearchConfig{
			MinSimilarity:    defaultMinSimilarity,
			SimilarityWeight: defaultSimilarityWeight,
			RecencyWeight:    defaultRecencyWeight,
			ComplexityWeight: defaultComplexityWeight,
		},
		Curation: CurationConfig{
			DuplicateThreshold: defaultDuplicateThreshold,
			ArchiveDays:        defaultArchiveDays,
		},
		Hooks: HooksConfig{
			TimeoutSeconds: defaultHookTimeoutSeconds,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Watcher: WatcherConfig{
			RateLimitSeconds: defaultWatcherRateLimitSeconds,
			MinSimilarity:    defaultWatcherMinSimilarity,
		},
	}
}
