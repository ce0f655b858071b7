// Package config handles configuration for the staging manager, including
// defaults, environment variables, a JSON overlay and command-line flags.
package config

import (
	"fmt"
	"time"
)

const (
	BrokerAMQP  = "amqp"
	BrokerKafka = "kafka"

	StagingHTTP = "http"
	StagingS3   = "s3"

	DefaultRabbitURL   = "amqp://localhost:5672"
	DefaultQueuePrefix = "ingest.upload.area"
)

// Config holds runtime settings for the staging manager.
//
// Fields:
//   - BrokerKind / BrokerURL: message transport ("amqp" or "kafka") and its address.
//   - Exchange / QueuePrefix: topic exchange name and the prefix the create and
//     cleanup queue names and routing keys are derived from.
//   - IngestAPIURL: base URL of the submission-tracking (ingest) API.
//   - StagingBackend: "http" for the upload service API, "s3" for bucket prefixes.
//   - StagingAPIURL / StagingAPIKey / StagingRefField: upload service settings;
//     StagingRefField names the credentials field ("urn" or "uri") holding the
//     area reference.
//   - S3*: object storage settings used by the "s3" staging backend.
//   - JWTSecret / JWTAudience / JWTSubject / TokenValidityDuration: service
//     token minted for the ingest API. An empty secret disables auth.
//   - CompleteAttempts / CompleteDelay / CompleteWithoutArea: completion retry policy.
//   - HealthAddrGRPC / MetricsAddr: listeners for gRPC health and Prometheus metrics.
type Config struct {
	BrokerKind  string
	BrokerURL   string
	Exchange    string
	QueuePrefix string

	IngestAPIURL   string
	RequestTimeout time.Duration

	StagingBackend  string
	StagingAPIURL   string
	StagingAPIKey   string
	StagingRefField string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	JWTSecret             string
	JWTAudience           string
	JWTSubject            string
	TokenValidityDuration time.Duration

	CompleteAttempts    int
	CompleteDelay       time.Duration
	CompleteWithoutArea bool

	LogLevel       string
	HealthAddrGRPC string
	MetricsAddr    string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.BrokerKind = BrokerAMQP
	c.BrokerURL = DefaultRabbitURL
	c.Exchange = "ingest.upload.area.exchange"
	c.QueuePrefix = DefaultQueuePrefix

	c.IngestAPIURL = "http://localhost:8080"
	c.RequestTimeout = 30 * time.Second

	c.StagingBackend = StagingHTTP
	c.StagingAPIURL = "http://localhost:8888"
	c.StagingAPIKey = ""
	c.StagingRefField = "urn"

	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "staging"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"

	c.JWTSecret = ""
	c.JWTAudience = "ingest-api"
	c.JWTSubject = "staging-manager"
	c.TokenValidityDuration = 10 * time.Minute

	c.CompleteAttempts = 5
	c.CompleteDelay = 1 * time.Second
	c.CompleteWithoutArea = false

	c.LogLevel = "info"
	c.HealthAddrGRPC = ":50051"
	c.MetricsAddr = ":9090"
}

// CreateQueue returns the queue bound to CreateRoutingKey.
func (c *Config) CreateQueue() string { return c.QueuePrefix + ".create.queue" }

// CreateRoutingKey returns the routing key of upload area create events.
func (c *Config) CreateRoutingKey() string { return c.QueuePrefix + ".create" }

// CleanupQueue returns the queue bound to CleanupRoutingKey.
func (c *Config) CleanupQueue() string { return c.QueuePrefix + ".cleanup.queue" }

// CleanupRoutingKey returns the routing key of upload area cleanup events.
func (c *Config) CleanupRoutingKey() string { return c.QueuePrefix + ".cleanup" }

// Validate reports settings the process cannot start with.
func (c *Config) Validate() error {
	switch c.BrokerKind {
	case BrokerAMQP, BrokerKafka:
	default:
		return fmt.Errorf("unknown broker kind %q", c.BrokerKind)
	}
	switch c.StagingBackend {
	case StagingHTTP, StagingS3:
	default:
		return fmt.Errorf("unknown staging backend %q", c.StagingBackend)
	}
	if c.StagingRefField != "urn" && c.StagingRefField != "uri" {
		return fmt.Errorf("staging reference field must be urn or uri, got %q", c.StagingRefField)
	}
	if c.CompleteAttempts < 1 {
		return fmt.Errorf("complete attempts must be positive, got %d", c.CompleteAttempts)
	}
	if c.BrokerURL == "" {
		return fmt.Errorf("broker url is empty")
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values from
// the environment, an optional JSON file and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
