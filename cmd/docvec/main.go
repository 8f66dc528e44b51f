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
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/docvec"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/ingest"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docvec",
		Usage: "Incremental document ingestion and embedding pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the TOML configuration file",
				Value:   config.DefaultPath(),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Poll the source and process changed files until interrupted",
				Action: runCommand,
			},
			{
				Name:   "sync",
				Usage:  "Run a single processing cycle and exit",
				Action: syncCommand,
			},
			{
				Name:      "search",
				Usage:     "Find stored chunks similar to a query",
				Action:    searchCommand,
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show tracked files, stored vectors and governor usage",
				Action: statsCommand,
			},
			{
				Name:   "init",
				Usage:  "Write a default configuration file",
				Action: initCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := docvec.NewService(ctx, c.String("config"),
		docvec.WithOrchestratorOptions(ingest.WithProgress(os.Stderr)))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Close()

	fmt.Fprintf(os.Stderr, "Config: %s\n", c.String("config"))
	fmt.Fprintln(os.Stderr, "Polling; press Ctrl-C to stop")

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run failed: %w", err)
	}

	totals := svc.Stats()
	fmt.Fprintf(os.Stderr, "Cycles: %d, files processed: %d, failed: %d, chunks embedded: %d\n",
		totals.Cycles, totals.FilesProcessed, totals.FilesFailed, totals.ChunksEmbedded)
	return nil
}

func syncCommand(c *cli.Context) error {
	ctx := context.Background()

	svc, err := docvec.NewService(ctx, c.String("config"),
		docvec.WithOrchestratorOptions(ingest.WithProgress(os.Stderr)))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Close()

	stats, err := svc.SyncOnce(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printCycle(stats)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	ctx := context.Background()
	svc, err := docvec.NewService(ctx, c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Close()

	results, err := svc.Search(ctx, query, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, result := range results {
		rec := result.Record
		fmt.Printf("%2d. [%.4f] %s (chunk %d/%d, file %s)\n",
			i+1, result.Score, rec.Title, rec.ChunkIndex+1, rec.TotalChunks, rec.FileID)
		fmt.Printf("    %s\n", condense(rec.Text, 200))
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	svc, err := docvec.NewService(ctx, c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Close()

	records, err := svc.Tracker().All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read tracker: %w", err)
	}
	vectorCount, err := svc.Vectors().Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count vectors: %w", err)
	}

	failing := 0
	for _, rec := range records {
		if rec.LastError != "" {
			failing++
		}
	}

	usage := svc.GovernorUsage()
	fmt.Printf("Tracked files:   %d (%d with errors)\n", len(records), failing)
	fmt.Printf("Stored vectors:  %d\n", vectorCount)
	fmt.Printf("Requests (1m/1h/24h): %d / %d / %d\n",
		usage.RequestsLastMinute, usage.RequestsLastHour, usage.RequestsLastDay)
	fmt.Printf("Tokens last minute:   %d\n", usage.TokensLastMinute)
	fmt.Printf("Cost last day:        $%.4f\n", usage.CostLastDay)
	return nil
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote default config to %s\n", path)
	return nil
}

func printCycle(stats ingest.CycleStats) {
	fmt.Fprintf(os.Stderr, "Files seen:      %d\n", stats.FilesSeen)
	fmt.Fprintf(os.Stderr, "Files changed:   %d\n", stats.FilesChanged)
	fmt.Fprintf(os.Stderr, "Files processed: %d\n", stats.FilesProcessed)
	fmt.Fprintf(os.Stderr, "Files failed:    %d\n", stats.FilesFailed)
	fmt.Fprintf(os.Stderr, "Chunks embedded: %d\n", stats.ChunksEmbedded)
	fmt.Fprintf(os.Stderr, "Tokens used:     %d ($%.4f)\n", stats.Usage.Tokens, stats.Usage.Cost)
	if stats.CostSuspended {
		fmt.Fprintln(os.Stderr, "Cost ceiling reached; remaining files deferred")
	}
}

func condense(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
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
