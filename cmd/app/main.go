package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nexus/internal"
	"github.com/starford/nexus/internal/intelservice"
	pkgconfig "github.com/starford/nexus/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("ingest: at least one file path is required")
	}

	var related []intelservice.Relation
	for _, raw := range cmd.StringSlice("related") {
		idPart, relType, _ := strings.Cut(raw, ":")
		id, err := uuid.Parse(strings.TrimSpace(idPart))
		if err != nil {
			return fmt.Errorf("ingest: invalid --related %q: %w", raw, err)
		}
		related = append(related, intelservice.Relation{ID: id, RelationshipType: strings.TrimSpace(relType)})
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Ingest(ctx, paths, related, internal.WithConfig(cfg), internal.WithVersion(version))
}

func main() {
	cmd := &cli.Command{
		Name:    "nexus",
		Usage:   "Cross-function intelligence graph: link entities, ingest and classify documents",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and inbox watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tool set over stdio",
				Action: serveMCP,
			},
			{
				Name:      "ingest",
				Usage:     "Process one or more files and print a JSON report per file",
				ArgsUsage: "<file>...",
				Action:    ingest,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "related",
						Usage: "Link every ingested document to an entity, as <uuid> or <uuid>:<relationship_type>",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
