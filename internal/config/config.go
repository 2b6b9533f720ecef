package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	DataDir          string        `env:"DATA_DIR" envDefault:"./data"`
	IndexBackend     string        `env:"INDEX_BACKEND" envDefault:"chromem"`
	Collection       string        `env:"COLLECTION" envDefault:"docs"`
	ChunkSize        int           `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap     int           `env:"CHUNK_OVERLAP" envDefault:"200"`
	TopK             int           `env:"TOP_K" envDefault:"3"`
	MinSimilarity    float32       `env:"MIN_SIMILARITY" envDefault:"NaN"`
	ContextSeparator string        `env:"CONTEXT_SEPARATOR"`
	IngestWorkers    int           `env:"INGEST_CONCURRENCY" envDefault:"4"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	OllamaAutoPull   bool          `env:"OLLAMA_AUTO_PULL" envDefault:"true"`

	Embed Embed `envPrefix:"EMBED_"`
	Llm   Llm   `envPrefix:"LLM_"`
}

type Embed struct {
	Provider    string  `env:"PROVIDER" envDefault:"local"`
	URL         string  `env:"URL" envDefault:"http://localhost:11434"`
	Model       string  `env:"MODEL" envDefault:"nomic-embed-text"`
	Key         string  `env:"API_KEY"`
	Dimension   int     `env:"DIMENSION" envDefault:"384"`
	BatchSize   int     `env:"BATCH_SIZE" envDefault:"32"`
	Concurrency int     `env:"CONCURRENCY" envDefault:"4"`
	RPS         float64 `env:"RPS" envDefault:"0"`
	MaxRetries  uint64  `env:"MAX_RETRIES" envDefault:"3"`
}

type Llm struct {
	URL         string  `env:"URL" envDefault:"http://localhost:11434/v1"`
	Model       string  `env:"MODEL" envDefault:"gemma2:2b"`
	Key         string  `env:"API_KEY"`
	MaxTokens   int     `env:"MAX_TOKENS" envDefault:"512"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.7"`
}

func Init(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	// в .env перевод строки обычно записан как \n
	if cfg.ContextSeparator == "" {
		cfg.ContextSeparator = "\n\n"
	} else {
		cfg.ContextSeparator = strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(cfg.ContextSeparator)
	}
	return nil
}
