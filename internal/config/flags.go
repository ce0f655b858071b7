package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/stagingmanager/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-q, --queue string    queue prefix; queues become <prefix>.create.queue and <prefix>.cleanup.queue
//	-r, --rabbit string   broker URL (e.g. "amqp://localhost:5672")
//	-l, --log string      log level
//	-b string   broker kind: amqp | kafka
//	-s string   staging backend: http | s3
//	-i string   ingest API base URL
//	-u string   upload (staging) API base URL
//
// os.Args is filtered with flagx.FilterArgs first, so -c / -config handled by
// parseJson does not trip this flag set.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-q", "-queue", "-r", "-rabbit", "-l", "-log", "-b", "-s", "-i", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.QueuePrefix, "q", config.QueuePrefix, "name prefix of the ingest queues to listen on")
	fs.StringVar(&config.QueuePrefix, "queue", config.QueuePrefix, "name prefix of the ingest queues to listen on")
	fs.StringVar(&config.BrokerURL, "r", config.BrokerURL, "URL of the message broker")
	fs.StringVar(&config.BrokerURL, "rabbit", config.BrokerURL, "URL of the message broker")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")
	fs.StringVar(&config.BrokerKind, "b", config.BrokerKind, "broker kind (amqp or kafka)")
	fs.StringVar(&config.StagingBackend, "s", config.StagingBackend, "staging backend (http or s3)")
	fs.StringVar(&config.IngestAPIURL, "i", config.IngestAPIURL, "ingest API base URL")
	fs.StringVar(&config.StagingAPIURL, "u", config.StagingAPIURL, "upload API base URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
