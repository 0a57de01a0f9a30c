// Package config parses the courier HCL configuration file.
package config

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the courier configuration.
type Config struct {
	// BaseURL is the external base URL of the service.
	BaseURL string `hcl:"base_url,optional"`

	// LogFormat configures log output ("standard" or "json").
	LogFormat string `hcl:"log_format,optional"`

	Server      *Server      `hcl:"server,block"`
	Postgres    *Postgres    `hcl:"postgres,block"`
	Attachments *Attachments `hcl:"attachments,block"`

	// Kafka configures the tracking-event relay. The relay is disabled when
	// the block is absent.
	Kafka *Kafka `hcl:"kafka,block"`
}

// Server is the HTTP listener configuration.
type Server struct {
	// Addr is the address to bind to, e.g. "127.0.0.1:8000".
	Addr string `hcl:"addr,optional"`
}

// Postgres configures the PostgreSQL connection.
type Postgres struct {
	Host     string `hcl:"host"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname"`
	SSLMode  string `hcl:"sslmode,optional"`
}

// Attachments configures the content store for document and reply files.
type Attachments struct {
	// Dir is the directory blobs are written to.
	Dir string `hcl:"dir"`
}

// Kafka configures the transactional-outbox relay.
type Kafka struct {
	Brokers []string `hcl:"brokers"`
	Topic   string   `hcl:"topic"`

	// PollIntervalSeconds is how often the relay drains the outbox.
	PollIntervalSeconds int `hcl:"poll_interval_seconds,optional"`

	// BatchSize is how many outbox rows are processed per poll.
	BatchSize int `hcl:"batch_size,optional"`

	// CleanupIntervalSeconds is how often published outbox rows past their
	// retention window are pruned.
	CleanupIntervalSeconds int `hcl:"cleanup_interval_seconds,optional"`
}

// NewConfig parses the configuration file at path.
func NewConfig(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("error decoding configuration file: %w", err)
	}

	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8000"
	}
	if cfg.Postgres != nil && cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Attachments == nil {
		cfg.Attachments = &Attachments{Dir: "assets"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the parsed configuration for missing required values.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Postgres, validation.Required),
	); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validation.ValidateStruct(c.Postgres,
		validation.Field(&c.Postgres.Host, validation.Required),
		validation.Field(&c.Postgres.User, validation.Required),
		validation.Field(&c.Postgres.DBName, validation.Required),
	); err != nil {
		return fmt.Errorf("invalid postgres configuration: %w", err)
	}

	if c.Kafka != nil {
		if err := validation.ValidateStruct(c.Kafka,
			validation.Field(&c.Kafka.Brokers, validation.Required),
			validation.Field(&c.Kafka.Topic, validation.Required),
		); err != nil {
			return fmt.Errorf("invalid kafka configuration: %w", err)
		}
	}

	return nil
}
