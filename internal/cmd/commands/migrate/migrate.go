package migrate

import (
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/courier-forge/courier/internal/cmd/base"
	"github.com/courier-forge/courier/internal/config"
	"github.com/courier-forge/courier/internal/migrate"
	"github.com/courier-forge/courier/pkg/database"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Apply database schema migrations"
}

func (c *Command) Help() string {
	return `Usage: courier migrate -config=config.hcl

  This command applies all pending schema migrations to the configured
  database.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(
		flag.NewFlagSet("migrate", flag.ExitOnError))

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
		Level: hclog.LevelFromString(os.Getenv("LOG_LEVEL")),
		Name:  "courier-migrate",
	})

	db, err := database.Connect(database.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
	}, log)
	if err != nil {
		ui.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}

	sqlDB, err := db.DB()
	if err != nil {
		ui.Error(fmt.Sprintf("error getting database handle: %v", err))
		return 1
	}
	defer sqlDB.Close()

	if err := migrate.RunMigrations(sqlDB, "postgres"); err != nil {
		ui.Error(fmt.Sprintf("error running migrations: %v", err))
		return 1
	}

	version, dirty, err := migrate.GetMigrationVersion(sqlDB, "postgres")
	if err != nil {
		ui.Error(fmt.Sprintf("error reading migration version: %v", err))
		return 1
	}

	ui.Info(fmt.Sprintf("migrations applied (version %d, dirty %t)", version, dirty))
	return 0
}
