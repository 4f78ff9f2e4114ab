package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/refs"
	"github.com/starford/raido/internal/refsvc"
	"github.com/starford/raido/internal/storage"
	pkgconfig "github.com/starford/raido/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// oneShotService builds a service for CLI commands that run and exit.
// The SSE broker is omitted; there is nobody to stream to.
func oneShotService(cfg *internal.Config, withHistory bool) (*refsvc.Service, storage.Provider, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init storage: %w", err)
	}

	var rec history.Recorder
	closeFn := func() {}
	if withHistory {
		db, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init history: %w", err)
		}
		rec = db
		closeFn = func() { _ = db.Close() }
	}

	engine := refs.NewEngine(store, logger)
	svc := refsvc.NewService(store, engine, rec, nil, logger)
	return svc, store, closeFn, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scanAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	target := cmd.String("target")

	svc, _, closeFn, err := oneShotService(cfg, false)
	if err != nil {
		return err
	}
	defer closeFn()

	references, err := svc.FindReferences(ctx, target, filepath.Base(target), cmd.Bool("latest-first"))
	if err != nil {
		return err
	}
	if len(references) == 0 {
		fmt.Printf("no references to %s\n", target)
		return nil
	}
	for _, ref := range references {
		fmt.Printf("%s:%d: %s\n", ref.NotePath, ref.Line, ref.RawLine)
	}
	return nil
}

func renameAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	from := cmd.String("from")
	to := cmd.String("to")

	svc, _, closeFn, err := oneShotService(cfg, true)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := svc.Rename(ctx, from, to)
	if err != nil {
		return err
	}
	changed, unchanged, failed := refs.Summarize(results)
	fmt.Printf("renamed %s -> %s: %d references updated, %d unchanged, %d failed\n",
		from, to, changed, unchanged, failed)
	if failed > 0 {
		return fmt.Errorf("%d notes could not be updated", failed)
	}
	return nil
}

func mcpAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	svc, store, closeFn, err := oneShotService(cfg, true)
	if err != nil {
		return err
	}
	defer closeFn()

	return mcpserver.New(svc, store).ServeStdio()
}

func initAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote default config to %s\n", path)
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "raido",
		Usage: "Image reference tracking and link rewriting for Markdown vaults",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server with the filesystem watcher",
				Action: serveAction,
			},
			{
				Name:   "scan",
				Usage:  "List every note line referencing an image",
				Action: scanAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Usage:    "Vault-relative image path",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "latest-first",
						Usage: "Order notes by modification time, newest first",
					},
				},
			},
			{
				Name:   "rename",
				Usage:  "Move an image and rewrite every reference to it",
				Action: renameAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "Current vault-relative image path",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "to",
						Usage:    "New vault-relative image path",
						Required: true,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: mcpAction,
			},
			{
				Name:   "init",
				Usage:  "Write a default config file",
				Action: initAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
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
