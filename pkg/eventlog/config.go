package eventlog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	dbconnect "github.com/madeneat/wplogify/pkg/dbConnect"
	redisconnect "github.com/madeneat/wplogify/pkg/redisConnect"
)

// Config represents the complete event log configuration.
type Config struct {
	Timezone      string              `yaml:"timezone"`
	TrackedRoles  []string            `yaml:"tracked_roles"`
	Properties    PropertiesConfig    `yaml:"properties"`
	Session       SessionConfig       `yaml:"session"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	GRPC          GRPCConfig          `yaml:"grpc"`
}

// PropertiesConfig controls how property values are typed, suppressed and
// redacted.
type PropertiesConfig struct {
	ExcludedKeys  []string          `yaml:"excluded_keys"`  // never reported
	IncludedKeys  []string          `yaml:"included_keys"`  // if set, only these are reported
	SensitiveKeys []string          `yaml:"sensitive_keys"` // redacted before saving
	BooleanKeys   []string          `yaml:"boolean_keys"`
	ReferenceKeys map[string]string `yaml:"reference_keys"` // key -> entity kind
	Redaction     RedactionMode     `yaml:"redaction"`
	HashKey       string            `yaml:"hash_key"`
}

// SessionConfig controls heartbeat session merging.
type SessionConfig struct {
	ContinuationThreshold time.Duration `yaml:"continuation_threshold"`
	TTL                   time.Duration `yaml:"ttl"`
	KeyPrefix             string        `yaml:"key_prefix"`
}

// DatabaseConfig selects the Postgres primary store.
type DatabaseConfig struct {
	Enabled            bool `yaml:"enabled"`
	dbconnect.DBConfig `yaml:",inline"`
}

// RedisConfig selects the Redis session store.
type RedisConfig struct {
	Enabled                  bool `yaml:"enabled"`
	redisconnect.RedisConfig `yaml:",inline"`
}

// ElasticsearchConfig represents the search index connection.
type ElasticsearchConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Addresses          []string      `yaml:"addresses"` // e.g., ["https://localhost:9200"]
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	APIKey             string        `yaml:"api_key"` // Alternative to username/password
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	IndexPrefix        string        `yaml:"index_prefix"`  // e.g., "wplogify-events"
	IndexPattern       string        `yaml:"index_pattern"` // e.g., "{prefix}-{yyyy.MM}"
	BulkSize           int           `yaml:"bulk_size"`
	MaxRetries         int           `yaml:"max_retries"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// GRPCConfig limits which RPCs open a scope. Methods are full names such
// as "/wp.PostService/UpdatePost".
type GRPCConfig struct {
	IncludedMethods []string `yaml:"included_methods"`
	ExcludedMethods []string `yaml:"excluded_methods"`
}

// LoadConfig parses YAML configuration, applies defaults and validates it.
func LoadConfig(configYAML []byte) (*Config, error) {
	var cfg Config

	err := yaml.Unmarshal(configYAML, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event log config: %w", err)
	}

	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid event log config: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFile reads a YAML file and expands ${VAR} references from the
// environment before parsing.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return LoadConfig([]byte(os.ExpandEnv(string(data))))
}

func (c *Config) setDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if len(c.TrackedRoles) == 0 {
		c.TrackedRoles = []string{"administrator"}
	}
	if c.Properties.Redaction == "" {
		c.Properties.Redaction = RedactionMask
	}
	if c.Session.ContinuationThreshold == 0 {
		c.Session.ContinuationThreshold = DefaultContinuationThreshold
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = "wplogify:session:"
	}
	if c.Database.TablePrefix == "" {
		c.Database.TablePrefix = "wp_wplogify_"
	}
	if c.Elasticsearch.BulkSize == 0 {
		c.Elasticsearch.BulkSize = 500
	}
	if c.Elasticsearch.MaxRetries == 0 {
		c.Elasticsearch.MaxRetries = 3
	}
	if c.Elasticsearch.RequestTimeout == 0 {
		c.Elasticsearch.RequestTimeout = 10 * time.Second
	}
	if c.Elasticsearch.IndexPrefix == "" {
		c.Elasticsearch.IndexPrefix = "wplogify-events"
	}
	if c.Elasticsearch.IndexPattern == "" {
		c.Elasticsearch.IndexPattern = "{prefix}-{yyyy.MM}"
	}
}

// Validate performs validation checks on the configuration.
func (c *Config) Validate() error {
	switch c.Properties.Redaction {
	case RedactionMask:
	case RedactionHash:
		if c.Properties.HashKey == "" {
			return fmt.Errorf("properties.hash_key is required for hash redaction")
		}
		if len(c.Properties.HashKey) > 64 {
			return fmt.Errorf("properties.hash_key must be at most 64 bytes")
		}
	default:
		return fmt.Errorf("unknown redaction mode %q", c.Properties.Redaction)
	}

	for key, kind := range c.Properties.ReferenceKeys {
		if kind == "" {
			return fmt.Errorf("reference key %s has no entity kind", key)
		}
	}

	if c.Session.ContinuationThreshold < 0 {
		return fmt.Errorf("session.continuation_threshold must not be negative")
	}

	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Dbname == "") {
		return fmt.Errorf("database host and name must be specified")
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis host must be specified")
	}

	if c.Elasticsearch.Enabled {
		if len(c.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("elasticsearch addresses must be specified")
		}
		if c.Elasticsearch.Username == "" && c.Elasticsearch.APIKey == "" {
			return fmt.Errorf("elasticsearch authentication required: username/password or api_key")
		}
	}

	return nil
}

// ReferenceKinds converts the reference key table to entity kinds.
func (c *Config) ReferenceKinds() map[string]EntityKind {
	out := make(map[string]EntityKind, len(c.Properties.ReferenceKeys))
	for key, kind := range c.Properties.ReferenceKeys {
		out[key] = EntityKind(strings.ToLower(kind))
	}
	return out
}

// GetIndexName generates the Elasticsearch index name for a timestamp.
func (c *ElasticsearchConfig) GetIndexName(timestamp time.Time) string {
	timestamp = timestamp.UTC()
	return strings.NewReplacer(
		"{prefix}", c.IndexPrefix,
		"{yyyy.MM.dd}", timestamp.Format("2006.01.02"),
		"{yyyy.MM}", timestamp.Format("2006.01"),
		"{yyyy}", fmt.Sprintf("%04d", timestamp.Year()),
		"{MM}", fmt.Sprintf("%02d", timestamp.Month()),
		"{dd}", fmt.Sprintf("%02d", timestamp.Day()),
	).Replace(c.IndexPattern)
}

// SearchPattern matches every index GetIndexName can produce.
func (c *ElasticsearchConfig) SearchPattern() string {
	return c.IndexPrefix + "-*"
}
