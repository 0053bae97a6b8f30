// Package config holds per-stage pipeline configuration. Every tunable a
// stage actually reads lives in an explicit struct with centralized
// defaults; nothing falls back silently at the call site.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full pipeline configuration assembled from the environment.
type Config struct {
	LLM          LLMConfig
	Graph        GraphConfig
	Filter       FilterConfig
	Connectivity ConnectivityConfig
	Assembly     AssemblyConfig
	Enrichment   EnrichmentConfig
	Narrative    NarrativeConfig
	Runner       RunnerConfig
	API          APIConfig
	CentroidFile string
}

// LLMConfig configures the external chat-completion service.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// GraphConfig configures the Neo4j connection.
type GraphConfig struct {
	URI      string
	Username string
	Password string
}

// FilterConfig tunes the P2 strategic filter. Stage 2 asks the graph for
// neighbors sharing at least MinSharedEntities within GraphWindowDays;
// promotion to strategic needs a neighbor at KeepSharedEntities.
type FilterConfig struct {
	MinSharedEntities  int
	KeepSharedEntities int
	GraphWindowDays    int
	MaxNeighbors       int
}

// ConnectivityConfig tunes the pairwise cache refresh.
type ConnectivityConfig struct {
	MaxPairs          int     // cap on the graph pair fetch
	MinComposite      float64 // rows below this are dropped
	InsertBatchSize   int
	MinSharedEntities int
}

// AssemblyConfig tunes P3 Event-Family assembly.
type AssemblyConfig struct {
	MaxTitles        int // 0 = entire backlog
	BatchSize        int
	RetryTemperature float64
}

// EnrichmentConfig tunes the per-EF enrichment processor.
type EnrichmentConfig struct {
	DailyCap         int
	MemberTitleLimit int     // member titles shown to the canonicalization prompt
	AutoLinkScore    float64 // centroid composite at/above which macro-link is set without LLM
	CandidateCount   int     // centroid candidates handed to the macro-link prompt
}

// NarrativeConfig tunes frame extraction.
type NarrativeConfig struct {
	CTMSampleSize     int
	EpicSampleSize    int
	CTMMinTitles      int
	EventMinTitles    int
	ClassifyBatchSize int
	RefreshGrowth     int
	RefreshInterval   time.Duration
}

// RunnerConfig tunes the stage runner.
type RunnerConfig struct {
	WorkerCount    int
	LLMConcurrency int64
	CheckpointDir  string
	MaxRetries     uint64
	InitialBackoff time.Duration
}

// APIConfig configures the on-demand HTTP surface.
type APIConfig struct {
	Port      string
	AuthToken string
}

// Load assembles the configuration from environment variables, applying
// defaults for everything except secrets and endpoints that have no sane
// default. Fatal problems are reported here so the process can exit before
// any work starts.
func Load() (*Config, error) {
	cfg := &Config{
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      os.Getenv("LLM_API_KEY"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 120*time.Second),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4096),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		},
		Graph: GraphConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USER", "neo4j"),
			Password: os.Getenv("NEO4J_PASSWORD"),
		},
		Filter: FilterConfig{
			MinSharedEntities:  getEnvInt("FILTER_MIN_SHARED_ENTITIES", 2),
			KeepSharedEntities: getEnvInt("FILTER_KEEP_SHARED_ENTITIES", 3),
			GraphWindowDays:    getEnvInt("FILTER_GRAPH_WINDOW_DAYS", 2),
			MaxNeighbors:       getEnvInt("FILTER_MAX_NEIGHBORS", 3),
		},
		Connectivity: ConnectivityConfig{
			MaxPairs:          getEnvInt("CONNECTIVITY_MAX_PAIRS", 50000),
			MinComposite:      getEnvFloat("CONNECTIVITY_MIN_COMPOSITE", 0.3),
			InsertBatchSize:   getEnvInt("CONNECTIVITY_INSERT_BATCH", 1000),
			MinSharedEntities: getEnvInt("CONNECTIVITY_MIN_SHARED", 2),
		},
		Assembly: AssemblyConfig{
			MaxTitles:        getEnvInt("ASSEMBLY_MAX_TITLES", 0),
			BatchSize:        getEnvInt("ASSEMBLY_BATCH_SIZE", 50),
			RetryTemperature: getEnvFloat("ASSEMBLY_RETRY_TEMPERATURE", 0.1),
		},
		Enrichment: EnrichmentConfig{
			DailyCap:         getEnvInt("ENRICHMENT_DAILY_CAP", 50),
			MemberTitleLimit: getEnvInt("ENRICHMENT_MEMBER_TITLES", 5),
			AutoLinkScore:    getEnvFloat("ENRICHMENT_AUTO_LINK_SCORE", 0.7),
			CandidateCount:   getEnvInt("ENRICHMENT_CANDIDATES", 5),
		},
		Narrative: NarrativeConfig{
			CTMSampleSize:     getEnvInt("NARRATIVE_CTM_SAMPLE", 200),
			EpicSampleSize:    getEnvInt("NARRATIVE_EPIC_SAMPLE", 150),
			CTMMinTitles:      getEnvInt("NARRATIVE_CTM_MIN_TITLES", 20),
			EventMinTitles:    getEnvInt("NARRATIVE_EVENT_MIN_TITLES", 5),
			ClassifyBatchSize: getEnvInt("NARRATIVE_CLASSIFY_BATCH", 60),
			RefreshGrowth:     getEnvInt("NARRATIVE_REFRESH_GROWTH", 10),
			RefreshInterval:   getEnvDuration("NARRATIVE_REFRESH_INTERVAL", 24*time.Hour),
		},
		Runner: RunnerConfig{
			WorkerCount:    getEnvInt("RUNNER_WORKERS", 4),
			LLMConcurrency: int64(getEnvInt("RUNNER_LLM_CONCURRENCY", 3)),
			CheckpointDir:  getEnv("CHECKPOINT_DIR", "logs/checkpoints"),
			MaxRetries:     uint64(getEnvInt("RUNNER_MAX_RETRIES", 3)),
			InitialBackoff: getEnvDuration("RUNNER_INITIAL_BACKOFF", time.Second),
		},
		API: APIConfig{
			Port:      getEnv("HTTP_PORT", "8080"),
			AuthToken: os.Getenv("API_AUTH_TOKEN"),
		},
		CentroidFile: getEnv("CENTROID_FILE", "deploy/config/centroids.yaml"),
	}

	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if cfg.Runner.WorkerCount < 1 || cfg.Runner.WorkerCount > 8 {
		return nil, fmt.Errorf("RUNNER_WORKERS must be between 1 and 8, got %d", cfg.Runner.WorkerCount)
	}
	if cfg.Runner.LLMConcurrency < 1 {
		return nil, fmt.Errorf("RUNNER_LLM_CONCURRENCY must be positive")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
