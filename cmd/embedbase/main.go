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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "embedbase",
		Usage: "Document embedding and semantic search service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				EnvVars: []string{"EMBEDBASE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file if it exists",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Store backend (badger, sqlite, postgres, memory)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database directory (badger) or file (sqlite)",
			},
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "Postgres connection string",
				EnvVars: []string{"EMBEDBASE_DSN"},
			},
			&cli.StringFlag{
				Name:  "embedder",
				Usage: "Embedding provider (openai, mock)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
					},
					&cli.StringFlag{
						Name:  "tenant-header",
						Usage: "Request header carrying the tenant id",
					},
					&cli.BoolFlag{
						Name:  "metrics",
						Usage: "Serve Prometheus metrics at /metrics",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Add files to a dataset",
				ArgsUsage: "<file or directory>...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					datasetFlag(),
					tenantFlag(),
					&cli.BoolFlag{
						Name:  "lines",
						Usage: "Treat every non-blank line as a separate document",
					},
					&cli.BoolFlag{
						Name:  "no-store-data",
						Usage: "Store embeddings and hashes without the document text",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to send in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: 3,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Query a dataset",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					datasetFlag(),
					tenantFlag(),
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of matches to return",
						Value:   5,
					},
					&cli.StringSliceFlag{
						Name:  "where",
						Usage: "Metadata filter as key=value, repeatable",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Report search stages on stderr",
					},
				},
			},
			{
				Name:   "datasets",
				Usage:  "List datasets and document counts",
				Action: datasetsCommand,
				Flags:  []cli.Flag{tenantFlag()},
			},
			{
				Name:   "clear",
				Usage:  "Remove every document in a dataset",
				Action: clearCommand,
				Flags:  []cli.Flag{datasetFlag(), tenantFlag()},
			},
		},
	}
}

func datasetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "dataset",
		Usage:    "Dataset id",
		Required: true,
	}
}

func tenantFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "tenant",
		Usage: "Tenant id (empty for the global scope)",
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
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
