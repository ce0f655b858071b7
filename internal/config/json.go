package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/stagingmanager/internal/flagx"
	"github.com/dmitrijs2005/stagingmanager/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration, so both "1s" and integer nanoseconds are accepted. Fields
// left out of the file keep their previous values.
type JsonConfig struct {
	BrokerKind  string `json:"broker_kind"`
	BrokerURL   string `json:"broker_url"`
	Exchange    string `json:"exchange"`
	QueuePrefix string `json:"queue_prefix"`

	IngestAPIURL   string          `json:"ingest_api_url"`
	RequestTimeout *timex.Duration `json:"request_timeout"`

	StagingBackend  string `json:"staging_backend"`
	StagingAPIURL   string `json:"staging_api_url"`
	StagingAPIKey   string `json:"staging_api_key"`
	StagingRefField string `json:"staging_ref_field"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	JWTSecret             string          `json:"jwt_secret"`
	JWTAudience           string          `json:"jwt_audience"`
	JWTSubject            string          `json:"jwt_subject"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`

	CompleteAttempts    *int            `json:"complete_attempts"`
	CompleteDelay       *timex.Duration `json:"complete_delay"`
	CompleteWithoutArea *bool           `json:"complete_without_area"`

	LogLevel       string `json:"log_level"`
	HealthAddrGRPC string `json:"health_addr_grpc"`
	MetricsAddr    string `json:"metrics_addr"`
}

// parseJson loads the file named by -c / -config into config. Without the
// flag nothing is loaded. An unreadable file or invalid JSON panics, the same
// as a bad flag.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	overlay(&config.BrokerKind, c.BrokerKind)
	overlay(&config.BrokerURL, c.BrokerURL)
	overlay(&config.Exchange, c.Exchange)
	overlay(&config.QueuePrefix, c.QueuePrefix)

	overlay(&config.IngestAPIURL, c.IngestAPIURL)
	if c.RequestTimeout != nil {
		config.RequestTimeout = c.RequestTimeout.Duration
	}

	overlay(&config.StagingBackend, c.StagingBackend)
	overlay(&config.StagingAPIURL, c.StagingAPIURL)
	overlay(&config.StagingAPIKey, c.StagingAPIKey)
	overlay(&config.StagingRefField, c.StagingRefField)

	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	overlay(&config.JWTSecret, c.JWTSecret)
	overlay(&config.JWTAudience, c.JWTAudience)
	overlay(&config.JWTSubject, c.JWTSubject)
	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}

	if c.CompleteAttempts != nil {
		config.CompleteAttempts = *c.CompleteAttempts
	}
	if c.CompleteDelay != nil {
		config.CompleteDelay = c.CompleteDelay.Duration
	}
	if c.CompleteWithoutArea != nil {
		config.CompleteWithoutArea = *c.CompleteWithoutArea
	}

	overlay(&config.LogLevel, c.LogLevel)
	overlay(&config.HealthAddrGRPC, c.HealthAddrGRPC)
	overlay(&config.MetricsAddr, c.MetricsAddr)
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
