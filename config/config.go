package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes yaml values like "5s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds application configuration
type Config struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	ObjectStore struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"object_store"`
	Gotenberg struct {
		BaseURL string   `yaml:"base_url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"gotenberg"`
	Embeddings struct {
		BaseURL string   `yaml:"base_url"`
		Model   string   `yaml:"model"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"embeddings"`
	Processing struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processing"`
	Workers struct {
		ConverterThreads int      `yaml:"converter_threads"`
		IndexerThreads   int      `yaml:"indexer_threads"`
		PollInterval     Duration `yaml:"poll_interval"`
		CrashBackoff     Duration `yaml:"crash_backoff"`
	} `yaml:"workers"`
	Index struct {
		Namespace string `yaml:"namespace"`
	} `yaml:"index"`
	Tracing struct {
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		ServiceName  string `yaml:"service_name"`
	} `yaml:"tracing"`
}

// Load loads configuration from a yaml file, falling back to defaults
// for anything the file does not set. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Processing.ChunkOverlap, c.Processing.ChunkSize)
	}
	if c.Workers.ConverterThreads < 0 || c.Workers.IndexerThreads < 0 {
		return fmt.Errorf("worker thread counts must not be negative")
	}
	if c.Index.Namespace == "" {
		return fmt.Errorf("index namespace must not be empty")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.ObjectStore.Endpoint = "localhost:9000"
	cfg.ObjectStore.AccessKey = "minioadmin"
	cfg.ObjectStore.SecretKey = "minioadmin"
	cfg.ObjectStore.Bucket = "docuchat-files"
	cfg.ObjectStore.UseSSL = false
	cfg.Gotenberg.BaseURL = "http://localhost:3100"
	cfg.Gotenberg.Timeout = Duration(2 * time.Minute)
	cfg.Embeddings.BaseURL = "http://localhost:11434"
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.Timeout = Duration(time.Minute)
	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 100
	cfg.Workers.ConverterThreads = 1
	cfg.Workers.IndexerThreads = 1
	cfg.Workers.PollInterval = Duration(5 * time.Second)
	cfg.Workers.CrashBackoff = Duration(5 * time.Second)
	cfg.Index.Namespace = "documents"
	cfg.Tracing.ServiceName = "docuchat-ingest"

	return cfg
}
