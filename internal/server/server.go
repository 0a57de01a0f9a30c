package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/courier-forge/courier/internal/attachments"
	"github.com/courier-forge/courier/internal/config"
	"github.com/courier-forge/courier/internal/identity"
	"github.com/courier-forge/courier/internal/routing"
	"github.com/courier-forge/courier/internal/thread"
)

// Server contains the server configuration.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// Logger is the logger for the server.
	Logger hclog.Logger

	// Attachments is the content store for document and reply files.
	Attachments *attachments.Store

	// Identity resolves email addresses to internal users.
	Identity *identity.Resolver

	// Routing is the document lifecycle and routing engine.
	Routing *routing.Engine

	// Threads is the reply thread service.
	Threads *thread.Service
}
