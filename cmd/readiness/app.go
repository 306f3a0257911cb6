package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/app"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/config"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/database"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "readiness",
		Usage: "score repositories for agent readiness",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (default warn)"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory holding readiness.db"},
			&cli.StringFlag{Name: "cache-dir", Usage: "skill cache directory"},
			&cli.StringFlag{Name: "scoring", Usage: "YAML scoring profile"},
		},
		Commands: []*cli.Command{
			assessCommand(),
			batchCommand(),
			aggregateCommand(),
			leaderboardCommand(),
			cacheCommand(),
		},
	}
}

// loadConfig reads READINESS_* variables and applies global flag overrides
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if _, ok := os.LookupEnv("READINESS_LOG_LEVEL"); !ok {
		cfg.LogLevel = "warn"
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("scoring") {
		cfg.ScoringFile = c.String("scoring")
	}
	return cfg, cfg.Validate()
}

func newLogger(c *cli.Context, cfg config.Config) *monitoring.Logger {
	return monitoring.NewLoggerWithWriter(c.App.ErrWriter, cfg.LogLevel)
}

// build loads config and the scoring pipeline for commands that scan
func build(c *cli.Context, adjust func(*config.Config)) (*app.Components, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return app.Build(cfg, newLogger(c, cfg), nil)
}

func openRepository(cfg config.Config) (*database.Repository, func(), error) {
	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return database.NewRepository(db), func() { _ = db.Close() }, nil
}
