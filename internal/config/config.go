package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Description provider selectors.
const (
	DescriptionLocal = "local"
	DescriptionCloud = "cloud"
)

// Vector index backends.
const (
	VectorBackendQdrant = "qdrant"
	VectorBackendMemory = "memory"
)

// DefaultUnsafeLabels are the classifier labels treated as unsafe.
var DefaultUnsafeLabels = []string{
	"EXPOSED_BREAST_F",
	"EXPOSED_GENITALIA_F",
	"EXPOSED_GENITALIA_M",
	"EXPOSED_BUTTOCKS",
	"EXPOSED_ANUS",
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Moderation  ModerationConfig  `mapstructure:"moderation"`
	Description DescriptionConfig `mapstructure:"description"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Vector      VectorConfig      `mapstructure:"vector"`
	Qdrant      QdrantConfig      `mapstructure:"qdrant"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
}

type ServerConfig struct {
	Port        int        `mapstructure:"port"`
	Mode        string     `mapstructure:"mode"`
	MaxUploadMB int        `mapstructure:"max_upload_mb"`
	CORS        CORSConfig `mapstructure:"cors"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type ModerationConfig struct {
	Threshold    float64          `mapstructure:"threshold"`
	UnsafeLabels []string         `mapstructure:"unsafe_labels"`
	Classifier   ClassifierConfig `mapstructure:"classifier"`
}

// ClassifierConfig points at the content-safety classifier sidecar.
type ClassifierConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxDimension int           `mapstructure:"max_dimension"`
}

type DescriptionConfig struct {
	Provider     string         `mapstructure:"provider"` // local | cloud
	Timeout      time.Duration  `mapstructure:"timeout"`
	ProbeTimeout time.Duration  `mapstructure:"probe_timeout"`
	JPEGQuality  int            `mapstructure:"jpeg_quality"`
	Local        LocalVLMConfig `mapstructure:"local"`
	Cloud        CloudVLMConfig `mapstructure:"cloud"`
}

// LocalVLMConfig configures an Ollama-style model server.
type LocalVLMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	MaxDimension int    `mapstructure:"max_dimension"`
}

// CloudVLMConfig configures an OpenAI-compatible vision API.
type CloudVLMConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	MaxDimension int    `mapstructure:"max_dimension"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type VectorConfig struct {
	Backend          string `mapstructure:"backend"` // qdrant | memory
	Collection       string `mapstructure:"collection"`
	ReplaceOnReindex bool   `mapstructure:"replace_on_reindex"`
}

// QdrantConfig selects a local (host/port) or cloud (url + api key) deployment.
type QdrantConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	UseTLS  bool          `mapstructure:"use_tls"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// IsCloud reports whether the cloud connection settings are complete.
func (c QdrantConfig) IsCloud() bool {
	return c.URL != "" && c.APIKey != ""
}

// Qdrant serves REST on 6333 and gRPC on 6334. Only gRPC is dialed.
const (
	QdrantRESTPort = 6333
	QdrantGRPCPort = 6334
)

// Endpoint resolves the gRPC host, port and TLS flag to dial.
// A cloud URL such as https://xyz.cloud.qdrant.io:6334 wins over host/port.
// The REST port is mapped to the gRPC port; see UsesRESTPort.
func (c QdrantConfig) Endpoint() (host string, port int, useTLS bool, err error) {
	host, port, useTLS, err = c.rawEndpoint()
	if err == nil && port == QdrantRESTPort {
		port = QdrantGRPCPort
	}
	return host, port, useTLS, err
}

// UsesRESTPort reports whether the configured endpoint names the REST port,
// as a QDRANT_URL copied from a REST client deployment does.
func (c QdrantConfig) UsesRESTPort() bool {
	_, port, _, err := c.rawEndpoint()
	return err == nil && port == QdrantRESTPort
}

func (c QdrantConfig) rawEndpoint() (host string, port int, useTLS bool, err error) {
	if c.URL == "" {
		return c.Host, c.Port, c.UseTLS || c.APIKey != "", nil
	}

	u, err := url.Parse(c.URL)
	if err != nil || u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("invalid qdrant url %q", c.URL)
	}
	port = c.Port
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant url port %q", p)
		}
	}
	return u.Hostname(), port, u.Scheme == "https" || c.UseTLS, nil
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // sqlite | postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// StorageConfig configures the moderation audit archive.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type IngestConfig struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
}

// Validate rejects settings that would make the pipeline misbehave.
// Missing credentials are not errors: the affected provider reports unavailable.
func (c *Config) Validate() error {
	var errs []error
	if c.Moderation.Threshold < 0 || c.Moderation.Threshold > 1 {
		errs = append(errs, fmt.Errorf("moderation.threshold must be within [0,1], got %v", c.Moderation.Threshold))
	}
	switch c.Description.Provider {
	case DescriptionLocal, DescriptionCloud:
	default:
		errs = append(errs, fmt.Errorf("description.provider must be %q or %q, got %q",
			DescriptionLocal, DescriptionCloud, c.Description.Provider))
	}
	switch c.Vector.Backend {
	case VectorBackendQdrant, VectorBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("vector.backend must be %q or %q, got %q",
			VectorBackendQdrant, VectorBackendMemory, c.Vector.Backend))
	}
	if c.Vector.Collection == "" {
		errs = append(errs, errors.New("vector.collection is required"))
	}
	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads configuration from an optional YAML file, .env and the environment.
// Parameters:
//   - configPath: explicit config file; empty searches ./configs and the working directory.
//
// Returns:
//   - *Config: resolved configuration.
//   - error: non-nil if the file is unreadable or a setting is invalid.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Embedding.ResolveEnvVars()
	if len(cfg.Moderation.UnsafeLabels) == 0 {
		cfg.Moderation.UnsafeLabels = append([]string(nil), DefaultUnsafeLabels...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("moderation.threshold", 0.6)
	v.SetDefault("moderation.unsafe_labels", DefaultUnsafeLabels)
	v.SetDefault("moderation.classifier.endpoint", "http://localhost:8002")
	v.SetDefault("moderation.classifier.timeout", 10*time.Second)
	v.SetDefault("moderation.classifier.max_dimension", 1024)

	v.SetDefault("description.provider", DescriptionLocal)
	v.SetDefault("description.timeout", 30*time.Second)
	v.SetDefault("description.probe_timeout", 2*time.Second)
	v.SetDefault("description.jpeg_quality", 85)
	v.SetDefault("description.local.base_url", "http://localhost:11434")
	v.SetDefault("description.local.model", "llava")
	v.SetDefault("description.local.max_dimension", 512)
	v.SetDefault("description.cloud.base_url", "https://api.openai.com/v1")
	v.SetDefault("description.cloud.model", "gpt-4o-mini")
	v.SetDefault("description.cloud.max_tokens", 300)
	v.SetDefault("description.cloud.max_dimension", 2048)

	v.SetDefault("embedding.name", "default")
	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.rate_limit", 0)
	v.SetDefault("embedding.cache.enabled", false)
	v.SetDefault("embedding.cache.ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("vector.backend", VectorBackendQdrant)
	v.SetDefault("vector.collection", "asset_images")
	v.SetDefault("vector.replace_on_reindex", true)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.timeout", 10*time.Second)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/assetlens.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "assetlens-audit")
	v.SetDefault("storage.prefix", "moderation")

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.batch_size", 20)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("moderation.threshold", "CONTENT_MODERATION_THRESHOLD")
	v.BindEnv("moderation.classifier.endpoint", "CLASSIFIER_URL")
	v.BindEnv("description.provider", "DESCRIPTION_PROVIDER")
	v.BindEnv("description.local.base_url", "OLLAMA_BASE_URL")
	v.BindEnv("description.local.model", "OLLAMA_MODEL")
	v.BindEnv("description.cloud.api_key", "OPENAI_API_KEY")
	v.BindEnv("description.cloud.base_url", "OPENAI_BASE_URL")
	v.BindEnv("description.cloud.model", "VLM_MODEL")
	v.BindEnv("embedding.provider", "EMBEDDING_PROVIDER")
	v.BindEnv("embedding.model", "EMBEDDING_MODEL")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("embedding.dimensions", "EMBEDDING_DIMENSIONS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("vector.backend", "VECTOR_BACKEND")
	v.BindEnv("vector.collection", "QDRANT_COLLECTION")
	v.BindEnv("qdrant.url", "QDRANT_URL")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
}
