package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/courier-forge/courier/internal/api"
	"github.com/courier-forge/courier/internal/attachments"
	"github.com/courier-forge/courier/internal/cmd/base"
	"github.com/courier-forge/courier/internal/config"
	"github.com/courier-forge/courier/internal/db"
	"github.com/courier-forge/courier/internal/identity"
	"github.com/courier-forge/courier/internal/notify"
	"github.com/courier-forge/courier/internal/routing"
	"github.com/courier-forge/courier/internal/server"
	"github.com/courier-forge/courier/internal/thread"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run the courier server"
}

func (c *Command) Help() string {
	return `Usage: courier server -config=config.hcl

  This command runs the courier correspondence routing server.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("server", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "(Required) Path to courier config file",
	)

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	if c.flagConfig == "" {
		ui.Error("config flag is required")
		return 1
	}

	cfg, err := config.NewConfig(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error parsing config file: %v", err))
		return 1
	}

	log := hclog.New(&hclog.LoggerOptions{
		JSONFormat: cfg.LogFormat == "json",
		Level:      hclog.LevelFromString(os.Getenv("LOG_LEVEL")),
		Name:       "courier",
	})

	database, err := db.NewDB(*cfg.Postgres, log)
	if err != nil {
		log.Error("error initializing database", "error", err)
		return 1
	}

	store, err := attachments.NewStore(afero.NewOsFs(), cfg.Attachments.Dir, log)
	if err != nil {
		log.Error("error initializing attachments store", "error", err)
		return 1
	}

	srv := server.Server{
		Config:      cfg,
		DB:          database,
		Logger:      log,
		Attachments: store,
		Identity:    identity.NewResolver(database, log),
		Routing:     routing.NewEngine(database, log),
		Threads:     thread.NewService(database, log),
	}

	// Tracking events are also written to the outbox table; when Kafka is
	// configured a relay drains it in the background.
	if cfg.Kafka != nil {
		relay, err := notify.New(notify.Config{
			DB:              database,
			Brokers:         cfg.Kafka.Brokers,
			Topic:           cfg.Kafka.Topic,
			PollInterval:    time.Duration(cfg.Kafka.PollIntervalSeconds) * time.Second,
			BatchSize:       cfg.Kafka.BatchSize,
			CleanupInterval: time.Duration(cfg.Kafka.CleanupIntervalSeconds) * time.Second,
			Logger:          log,
		})
		if err != nil {
			log.Error("error creating tracking relay", "error", err)
			return 1
		}
		go func() {
			if err := relay.Start(context.Background()); err != nil {
				log.Error("tracking relay stopped", "error", err)
			}
		}()
		defer relay.Stop()
	}

	mux := http.NewServeMux()
	for _, e := range endpoints(srv) {
		log.Info("registering endpoint", "pattern", e.pattern)
		mux.Handle(e.pattern, e.handler)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("listening", "addr", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Error("server error", "error", err)
		return 1
	}

	return 0
}

type endpoint struct {
	pattern string
	handler http.Handler
}

// endpoints declares the full HTTP surface. Patterns ending in a slash take
// a path parameter which the handler parses itself.
func endpoints(srv server.Server) []endpoint {
	return []endpoint{
		{"/submit-form", api.SubmitFormHandler(srv)},
		{"/update-recipient-status/", api.RecipientStatusHandler(srv)},
		{"/forward-document/", api.ForwardHandler(srv)},
		{"/delete-recipient/", api.DeleteRecipientHandler(srv)},
		{"/get-documents/", api.IncomingDocumentsHandler(srv)},
		{"/get-sent-documents/", api.SentDocumentsHandler(srv)},
		{"/documents", api.AllDocumentsHandler(srv)},
		{"/document-tracking/", api.TrackingHandler(srv)},
		{"/submit-reply", api.SubmitReplyHandler(srv)},
		{"/get-replies", api.RepliesHandler(srv)},
		{"/get-replies/", api.RepliesByReceiverHandler(srv)},
		{"/get-replies-by-docx/", api.RepliesByDocumentHandler(srv)},
		{"/mark-replies-seen/", api.MarkSeenHandler(srv)},
		{"/count-not-seen-replies/", api.UnseenForReceiverHandler(srv)},
		{"/count-not-seen-replies/user/", api.UnseenExcludingUserHandler(srv)},
		{"/health", api.HealthHandler(srv)},
	}
}
