package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/shelf/internal"
	pkgconfig "github.com/starford/shelf/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// loadConfig reads the config file named by --config. A missing file means
// defaults. One-shot commands log at WARN unless --verbose is given.
func loadConfig(cmd *cli.Command, quiet bool) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOrDefault(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if quiet && !cmd.Bool("verbose") && cfg.App.LogLevel < slog.LevelWarn {
		cfg.App.LogLevel = slog.LevelWarn
	}
	if !found && cmd.Bool("verbose") {
		slog.Info("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "shelf",
		Usage:   "Personal book catalog with a JSON document store, full-text search, REST and MCP access",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: table, json or yaml (default: table on a terminal, json otherwise)",
				Sources: cli.EnvVars("SHELF_OUTPUT"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at the configured level instead of WARN",
			},
		},
		Commands: []*cli.Command{
			addCommand(),
			listCommand(),
			removeCommand(),
			readCommand("read", true),
			readCommand("unread", false),
			searchCommand(),
			statsCommand(),
			importCommand(),
			backupCommand(),
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, file watcher and backup scheduler",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve catalog tools over MCP on stdio",
				Action: serveMCP,
			},
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
