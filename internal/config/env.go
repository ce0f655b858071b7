package config

import (
	"os"
	"strconv"
	"strings"
)

// parseEnv overlays Config with environment variables that are set and
// non-empty. Values that fail to parse are ignored.
//
//	RABBIT_URL            broker address (also used for kafka brokers)
//	BROKER_KIND           amqp | kafka
//	INGEST_API_URL        submission service base URL
//	STAGING_BACKEND       http | s3
//	STAGING_API_URL       upload service base URL
//	STAGING_API_KEY       upload service API key
//	STAGING_REF_FIELD     urn | uri
//	INGEST_JWT_SECRET     HMAC secret for ingest service tokens
//	COMPLETE_WITHOUT_AREA complete submissions that had no upload area (bool)
//	LOG_LEVEL             debug | info | warn | error
func parseEnv(cfg *Config) {
	if v := os.Getenv("RABBIT_URL"); v != "" {
		cfg.BrokerURL = os.ExpandEnv(v)
	}

	setString(&cfg.BrokerKind, "BROKER_KIND")
	setString(&cfg.IngestAPIURL, "INGEST_API_URL")
	setString(&cfg.StagingBackend, "STAGING_BACKEND")
	setString(&cfg.StagingAPIURL, "STAGING_API_URL")
	setString(&cfg.StagingAPIKey, "STAGING_API_KEY")
	setString(&cfg.StagingRefField, "STAGING_REF_FIELD")
	setString(&cfg.JWTSecret, "INGEST_JWT_SECRET")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := strings.TrimSpace(os.Getenv("COMPLETE_WITHOUT_AREA")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CompleteWithoutArea = b
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
