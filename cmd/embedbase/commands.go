package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/embedbase"
	"github.com/poiesic/embedbase/config"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/loader"
	"github.com/poiesic/embedbase/search"
	"github.com/urfave/cli/v2"
)

// loadConfig layers the config file, the environment and global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if c.IsSet("store") {
		cfg.Store.Backend = c.String("store")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("dsn") {
		cfg.Store.DSN = c.String("dsn")
	}
	if c.IsSet("embedder") {
		cfg.Embedder.Provider = c.String("embedder")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedder.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedder.Model = c.String("embedding-model")
	}
	return cfg, nil
}

func openApp(cfg *config.Config) (*embedbase.App, error) {
	app, err := embedbase.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if c.IsSet("tenant-header") {
		cfg.Server.TenantHeader = c.String("tenant-header")
	}
	if c.IsSet("metrics") {
		cfg.Metrics.Enabled = c.Bool("metrics")
	}

	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.App.ErrWriter, "Store: %s\n", cfg.Store.Backend)
	fmt.Fprintf(c.App.ErrWriter, "Embedder: %s (%s)\n", cfg.Embedder.Provider, cfg.Embedder.Model)
	fmt.Fprintf(c.App.ErrWriter, "Listening on %s\n", cfg.Server.Addr)
	return app.Run(ctx)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file or directory is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := loader.ReadItems(c.Args().Slice(), c.Bool("lines"))
	if err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}
	pipeline, err := app.Pipeline(ctx)
	if err != nil {
		return err
	}

	loaderConfig := &loader.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		StoreData:      !c.Bool("no-store-data"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     cfg.Embedder.BaseDelay.Std(),
	}
	l, err := loader.NewLoader(pipeline, loaderConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	if _, err := l.Run(ctx, c.String("dataset"), c.String("tenant"), items); err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	where, err := parseWhere(c.StringSlice("where"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := c.Context
	searcher, err := app.Searcher(ctx)
	if err != nil {
		return err
	}

	var monitor search.SearchMonitor
	if c.Bool("verbose") {
		monitor = newStageReporter(c.App.ErrWriter)
	}
	matches, err := searcher.SearchWithMonitor(ctx, search.Query{
		Text:      query,
		TopK:      c.Int("top-k"),
		DatasetID: c.String("dataset"),
		TenantID:  c.String("tenant"),
		Where:     where,
	}, monitor)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d matches\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(out, "%d: [%0.3f] %s %q\n", i+1, m.Score, m.ID, excerpt(m.Data, 80))
	}
	return nil
}

func datasetsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	store, err := app.Store(c.Context)
	if err != nil {
		return err
	}
	datasets, err := store.Datasets(c.Context, c.String("tenant"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tDOCUMENTS\tCREATED")
	for _, d := range datasets {
		created := "-"
		if !d.CreatedAt.IsZero() {
			created = d.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", d.DatasetID, d.DocumentsCount, created)
	}
	return w.Flush()
}

func clearCommand(c *cli.Context) error {
	datasetID := c.String("dataset")
	if err := core.ValidateDatasetID(datasetID); err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	store, err := app.Store(c.Context)
	if err != nil {
		return err
	}
	if err := store.Clear(c.Context, datasetID, c.String("tenant")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Cleared dataset %q\n", datasetID)
	return nil
}

// parseWhere turns key=value pairs into a metadata filter. Values that
// parse as numbers or booleans are matched as such.
func parseWhere(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	where := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			where[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			where[key] = b
		} else {
			where[key] = value
		}
	}
	return where, nil
}

func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
