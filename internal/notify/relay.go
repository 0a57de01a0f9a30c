// Package notify publishes tracking events to an event stream for
// downstream consumers (badges, dashboards, archival). It implements the
// relay half of the transactional outbox pattern: tracking events land on
// the outbox inside the same transaction as their audit line, and the relay
// drains pending rows to Kafka at least once. Publication is best effort;
// a stalled relay never blocks the routing engine.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/courier-forge/courier/pkg/models"
)

// TrackingEventMessage is the wire format published per tracking event.
type TrackingEventMessage struct {
	ID           uint      `json:"id"`
	EventID      uint      `json:"eventId"`
	DocumentCode string    `json:"documentCode"`
	UserID       uint      `json:"userId"`
	Action       string    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
}

// outboxRetention is how long published outbox rows are kept before the
// periodic cleanup removes them.
const outboxRetention = 24 * time.Hour

// Relay polls the tracking_outbox table and publishes events to Kafka.
type Relay struct {
	db              *gorm.DB
	kafkaClient     *kgo.Client
	topic           string
	logger          hclog.Logger
	pollInterval    time.Duration
	batchSize       int
	cleanupInterval time.Duration
	stopCh          chan struct{}
}

// Config holds configuration for the relay service.
type Config struct {
	// Database connection
	DB *gorm.DB

	// Kafka configuration
	Brokers []string
	Topic   string

	// Polling configuration
	PollInterval time.Duration // How often to poll the outbox (default: 1s)
	BatchSize    int           // How many outbox entries to process per batch (default: 100)

	// CleanupInterval is how often published outbox rows older than the
	// retention window are pruned (default: 1h)
	CleanupInterval time.Duration

	// Logger
	Logger hclog.Logger
}

// New creates a new outbox relay service.
func New(cfg Config) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Producer durability settings
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Retry configuration
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		// Batching for better throughput
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Relay{
		db:              cfg.DB,
		kafkaClient:     kafkaClient,
		topic:           cfg.Topic,
		logger:          cfg.Logger.Named("outbox-relay"),
		pollInterval:    cfg.PollInterval,
		batchSize:       cfg.BatchSize,
		cleanupInterval: cfg.CleanupInterval,
		stopCh:          make(chan struct{}),
	}, nil
}

// Start starts the relay polling loop. Blocks until Stop() is called or the
// context is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting outbox relay service",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
		"topic", r.topic,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(r.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay service stopped by context")
			return ctx.Err()

		case <-r.stopCh:
			r.logger.Info("outbox relay service stopped")
			return nil

		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				r.logger.Error("failed to process outbox batch", "error", err)
				// Continue polling even on errors
			}

		case <-cleanupTicker.C:
			if err := r.CleanupOldEntries(outboxRetention); err != nil {
				r.logger.Error("failed to cleanup outbox", "error", err)
			}
		}
	}
}

// Stop gracefully stops the relay service.
func (r *Relay) Stop() {
	close(r.stopCh)
	r.kafkaClient.Close()
}

// processBatch fetches pending outbox entries and publishes them.
func (r *Relay) processBatch(ctx context.Context) error {
	entries, err := models.FindPendingOutboxEntries(r.db, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to find pending outbox entries: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	r.logger.Debug("processing outbox batch", "count", len(entries))

	successCount := 0
	failCount := 0

	for _, entry := range entries {
		if err := r.publishEntry(ctx, &entry); err != nil {
			r.logger.Error("failed to publish outbox entry",
				"outbox_id", entry.ID,
				"document_code", entry.DocumentCode,
				"error", err,
			)

			if markErr := entry.MarkAsFailed(r.db, err); markErr != nil {
				r.logger.Error("failed to mark outbox entry as failed",
					"outbox_id", entry.ID,
					"error", markErr,
				)
			}

			failCount++
			continue
		}

		if err := entry.MarkAsPublished(r.db); err != nil {
			r.logger.Error("failed to mark outbox entry as published",
				"outbox_id", entry.ID,
				"error", err,
			)
			failCount++
			continue
		}

		successCount++
	}

	r.logger.Info("processed outbox batch",
		"total", len(entries),
		"success", successCount,
		"failed", failCount,
	)

	return nil
}

// publishEntry publishes a single outbox entry to the topic. The record key
// is the document code so events for one document stay ordered.
func (r *Relay) publishEntry(ctx context.Context, entry *models.TrackingOutbox) error {
	message := TrackingEventMessage{
		ID:           entry.ID,
		EventID:      entry.EventID,
		DocumentCode: entry.DocumentCode,
		UserID:       entry.UserID,
		Action:       entry.Action,
		Timestamp:    entry.CreatedAt,
	}

	messageJSON, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(entry.DocumentCode),
		Value: messageJSON,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(fmt.Sprintf("%d", entry.EventID))},
		},
	}

	if err := r.kafkaClient.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}

	r.logger.Debug("published event to kafka",
		"outbox_id", entry.ID,
		"document_code", entry.DocumentCode,
		"partition_key", entry.DocumentCode,
	)

	return nil
}

// CleanupOldEntries removes published outbox entries older than the
// specified duration to prevent unbounded table growth.
func (r *Relay) CleanupOldEntries(olderThan time.Duration) error {
	deleted, err := models.DeleteOldPublishedEntries(r.db, olderThan)
	if err != nil {
		return fmt.Errorf("failed to cleanup old outbox entries: %w", err)
	}

	r.logger.Info("cleaned up old outbox entries",
		"deleted", deleted,
		"older_than", olderThan,
	)
	return nil
}
