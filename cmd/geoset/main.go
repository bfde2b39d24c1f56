// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/geoset"
	"github.com/poiesic/geoset/backup"
	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/migrate"
	"github.com/poiesic/geoset/server"
	"github.com/poiesic/geoset/storage/dirstore"
	"github.com/poiesic/geoset/storage/flatstore"
)

func main() {
	app := &cli.App{
		Name:  "geoset",
		Usage: "Storage tooling for geographic question/answer datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Root directory for local storage backends",
				Value:   "geoset-data",
			},
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Base URL of a remote file server to prefer",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP file server over a directory store",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
						Value: "127.0.0.1:8731",
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Move legacy flat-store data into the elected backend",
				Action: migrateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "legacy",
						Usage:    "Path to the legacy flat-store file",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to move per batch",
						Value: migrate.DefaultBatchSize,
					},
				},
			},
			{
				Name:   "backup",
				Usage:  "Write a snapshot of the store to a file",
				Action: backupCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Snapshot output path",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "include-images",
						Usage: "Keep image payloads in the snapshot",
						Value: true,
					},
				},
			},
			{
				Name:   "restore",
				Usage:  "Replace store contents with a snapshot",
				Action: restoreCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "in",
						Aliases:  []string{"i"},
						Usage:    "Snapshot input path",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "Skip the safety snapshot of current state",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Render the store into its export format",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   ".",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format (json, conversation)",
						Value: string(core.ExportFormatJSON),
					},
					&cli.BoolFlag{
						Name:  "archive",
						Usage: "Package output files into one zip",
					},
					&cli.BoolFlag{
						Name:  "images",
						Usage: "Materialize image files alongside the data",
					},
					&cli.BoolFlag{
						Name:  "history",
						Usage: "Include revision history in JSON exports",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print storage statistics for the elected backend",
				Action: statsCommand,
			},
			{
				Name:   "clear",
				Usage:  "Delete every record and image from the store",
				Action: clearCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openStore builds the store from the global flags and waits for the
// backend election before returning.
func openStore(ctx context.Context, c *cli.Context) (*geoset.Store, error) {
	opts := []geoset.StoreOption{
		geoset.WithDataDir(c.String("data-dir")),
	}
	if remote := c.String("remote"); remote != "" {
		opts = append(opts, geoset.WithRemoteURL(remote))
	}

	store := geoset.NewStore(ctx, opts...)
	mode, err := store.Adapter().ActiveMode(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("no storage backend available: %w", err)
	}
	slog.Info("storage ready", "mode", mode)
	return store, nil
}

func serveCommand(c *cli.Context) error {
	root := filepath.Join(c.String("data-dir"), "served")
	backend := dirstore.New(root)
	if !backend.Initialize(c.Context) {
		return fmt.Errorf("directory store at %s is not writable", root)
	}
	defer backend.Close()

	srv := server.New(backend)
	return srv.ListenAndServe(c.String("addr"))
}

func migrateCommand(c *cli.Context) error {
	ctx := c.Context

	legacy := flatstore.New(c.String("legacy"))
	if !legacy.Initialize(ctx) {
		return fmt.Errorf("legacy store at %s could not be opened", c.String("legacy"))
	}
	defer legacy.Close()

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker := migrate.NewTracker(os.Stderr)
	manager, err := store.NewMigrationManager(ctx, legacy,
		migrate.WithBatchSize(c.Int("batch-size")),
		migrate.WithProgress(tracker.Report),
	)
	if err != nil {
		return err
	}

	report, err := manager.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if report.State == migrate.StateCompleted {
		fmt.Fprintf(os.Stderr, "migrated %d records (%d failed) in %s\n",
			report.Migrated, report.Failed, report.Duration.Round(1e6))
	} else {
		fmt.Fprintln(os.Stderr, "no migration needed")
	}
	return nil
}

func backupCommand(c *cli.Context) error {
	ctx := c.Context

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	snapshot, err := store.NewBackupManager().Create(ctx, backup.Options{
		IncludeImages: c.Bool("include-images"),
		Validate:      true,
	})
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out"), data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d entries to %s\n",
		snapshot.Metadata.EntryCount, c.String("out"))
	return nil
}

func restoreCommand(c *cli.Context) error {
	ctx := c.Context

	data, err := os.ReadFile(c.String("in"))
	if err != nil {
		return err
	}
	var snapshot backup.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("malformed snapshot: %w", err)
	}

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.NewBackupManager().Restore(ctx, &snapshot, backup.RestoreOptions{
		Overwrite: c.Bool("overwrite"),
	})
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "restored %d entries\n", len(snapshot.Entries))
	return nil
}

func exportCommand(c *cli.Context) error {
	ctx := c.Context

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := core.DefaultExportConfig()
	cfg.Format = core.ExportFormat(c.String("format"))
	cfg.IncludeHistory = c.Bool("history")
	cfg.MaterializeImages = c.Bool("images")
	if c.Bool("archive") {
		cfg.Packaging = core.PackagingArchive
	}

	output, err := store.NewExporter().Export(ctx, cfg)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	outDir := c.String("out")
	for _, file := range output.Files {
		path := filepath.Join(outDir, filepath.FromSlash(file.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, file.Data, 0o644); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "wrote %d files to %s\n", len(output.Files), outDir)
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := c.Context

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Adapter().StorageStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("backend:            %s\n", stats.Mode)
	fmt.Printf("entries:            %d\n", stats.EntryCount)
	fmt.Printf("images:             %d\n", stats.ImageCount)
	fmt.Printf("total bytes:        %d\n", stats.TotalBytes)
	fmt.Printf("capacity used:      %.0f%%\n", stats.CapacityRatio*100)
	fmt.Printf("compression ratio:  %.2f\n", stats.CompressionRatio)
	return nil
}

func clearCommand(c *cli.Context) error {
	ctx := c.Context

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Adapter().ClearAll(ctx); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, "store cleared")
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
