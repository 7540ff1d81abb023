// Command migrate manages the Postgres schema with goose.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/migrate"
)

// An empty Dir on the database commands selects the embedded migrations.

type UpCmd struct {
	Dir string `help:"Migrations directory."`
}

func (c *UpCmd) Run(ctx context.Context, conn *sql.DB) error {
	return migrate.Run(ctx, conn, migrate.Source{Dir: c.Dir}, "up")
}

type DownCmd struct {
	Dir string `help:"Migrations directory."`
}

func (c *DownCmd) Run(ctx context.Context, conn *sql.DB) error {
	return migrate.Run(ctx, conn, migrate.Source{Dir: c.Dir}, "down")
}

type StatusCmd struct {
	Dir string `help:"Migrations directory."`
}

func (c *StatusCmd) Run(ctx context.Context, conn *sql.DB) error {
	return migrate.Run(ctx, conn, migrate.Source{Dir: c.Dir}, "status")
}

type ToCmd struct {
	Version string `arg:"" help:"Target version (YYYYMMDDHHMMSS)."`
	Dir     string `help:"Migrations directory."`
}

func (c *ToCmd) Run(ctx context.Context, conn *sql.DB) error {
	return migrate.MigrateToVersion(ctx, conn, migrate.Source{Dir: c.Dir}, c.Version)
}

type CreateCmd struct {
	Name string `arg:"" help:"Short description; create_<table> scaffolds a table."`
	Dir  string `default:"${migrations_dir}" help:"Directory to write into."`
}

func (c *CreateCmd) Run() error {
	path, err := migrate.Scaffold(c.Dir, c.Name, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Println("created", path)
	return nil
}

type ValidateCmd struct {
	Dir string `default:"${migrations_dir}" help:"Directory to check."`
}

func (c *ValidateCmd) Run() error {
	if err := migrate.CheckDir(c.Dir); err != nil {
		return err
	}
	fmt.Println("migrations ok")
	return nil
}

type cli struct {
	Up       UpCmd       `cmd:"" help:"Apply all pending migrations."`
	Down     DownCmd     `cmd:"" help:"Roll back the latest migration."`
	Status   StatusCmd   `cmd:"" help:"Show applied and pending migrations."`
	To       ToCmd       `cmd:"" help:"Migrate up or down to a version."`
	Create   CreateCmd   `cmd:"" help:"Scaffold a new SQL migration."`
	Validate ValidateCmd `cmd:"" help:"Check migration names, versions and goose sections."`
}

func main() {
	var cmd cli
	kctx := kong.Parse(&cmd,
		kong.Name("migrate"),
		kong.Description("Pharo schema migrations."),
		kong.UsageOnError(),
		kong.Vars{"migrations_dir": migrate.DefaultDir},
	)

	// create and validate only touch files.
	switch kctx.Command() {
	case "create <name>", "validate":
		kctx.FatalIfErrorf(kctx.Run())
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": kctx.Command()})

	client, err := db.New(ctx, cfg.DB, logg)
	kctx.FatalIfErrorf(err)
	defer client.Close()
	conn, err := client.DB().DB()
	kctx.FatalIfErrorf(err)

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(conn); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		kctx.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}
