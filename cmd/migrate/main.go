package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const sourceTreeDir = "pkg/migrate/migrations"

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up                apply all pending migrations
  down              roll back the latest migration
  status            list migrations and when they were applied
  to <version>      migrate up or down to YYYYMMDDHHMMSS
  create <name>     write a new SQL migration (defaults to the source tree)
  validate          check filenames and goose annotations
`

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "", "migrations directory (empty uses the embedded set)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, arg := flag.Arg(0), flag.Arg(1)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"command": command, "dir": *dir})

	if err := run(ctx, cfg, logg, *dir, command, arg); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, dir, command, arg string) error {
	switch command {
	case "create":
		if arg == "" {
			return fmt.Errorf("create needs a migration name")
		}
		if dir == "" {
			dir = sourceTreeDir
		}
		path, err := migrate.Create(dir, arg)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		fsys, err := migrate.Source(dir)
		if err != nil {
			return err
		}
		if err := migrate.Validate(fsys); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		return fmt.Errorf("goose migrations target postgres; sqlite dev databases are created on boot")
	}
	fsys, err := migrate.Source(dir)
	if err != nil {
		return err
	}
	client, err := db.New(ctx, cfg.DB, false, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, fsys, logg)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "to":
		if arg == "" {
			return fmt.Errorf("to needs a target version")
		}
		return migrator.To(ctx, arg)
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
