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

package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/poiesic/embedbase/ai"
	"github.com/poiesic/embedbase/batch"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/ingestion"
)

// Config holds configuration for a load.
type Config struct {
	// BatchSize is the number of documents sent to the pipeline per call
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// StoreData persists document text alongside embeddings
	StoreData bool

	// MaxRetries bounds attempts per batch, including the first
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		StoreData:      true,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Validate checks that every count is positive.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be greater than 0", ErrInvalidConfig)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("%w: report interval must be greater than 0", ErrInvalidConfig)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be greater than 0", ErrInvalidConfig)
	}
	return nil
}

// Adder ingests one batch. *ingestion.Pipeline implements it.
type Adder interface {
	Add(ctx context.Context, req ingestion.AddRequest) ([]core.Document, error)
}

var _ Adder = (*ingestion.Pipeline)(nil)

// Summary reports the outcome of a load.
type Summary struct {
	Documents int
	Batches   int
	Elapsed   time.Duration
}

// Loader sends items to an Adder in batches.
type Loader struct {
	adder    Adder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewLoader creates a new loader.
// progress: where to write progress output (typically os.Stderr)
func NewLoader(adder Adder, config *Config, progress io.Writer) (*Loader, error) {
	if adder == nil {
		return nil, ErrAdderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Loader{
		adder:    adder,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "loader"),
	}, nil
}

// Run loads items into the dataset. Batches are sent in order; the first
// batch that still fails after retries stops the load.
func (l *Loader) Run(ctx context.Context, datasetID, tenantID string, items []Item) (Summary, error) {
	var summary Summary
	if len(items) == 0 {
		fmt.Fprintf(l.progress, "No documents found (0 documents)\n")
		return summary, nil
	}

	fmt.Fprintf(l.progress, "Loading %d documents into %q (batch size: %d)\n",
		len(items), datasetID, l.config.BatchSize)

	tracker := NewProgressTracker(l.progress, len(items), l.config.ReportInterval)
	tracker.Start()

	for chunk := range batch.Split(items, l.config.BatchSize) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := l.addBatch(ctx, datasetID, tenantID, chunk); err != nil {
			return summary, fmt.Errorf("batch %d: %w", summary.Batches+1, err)
		}
		summary.Batches++
		summary.Documents += len(chunk)
		tracker.Increment(len(chunk))
	}

	tracker.Finish()
	summary.Elapsed = tracker.Elapsed()
	fmt.Fprintf(l.progress, "Load complete. Processed %d documents in %v (%.1f documents/sec)\n",
		summary.Documents, summary.Elapsed.Round(time.Millisecond), float64(summary.Documents)/summary.Elapsed.Seconds())
	return summary, nil
}

func (l *Loader) addBatch(ctx context.Context, datasetID, tenantID string, items []Item) error {
	candidates := make([]ingestion.Candidate, len(items))
	for i := range items {
		candidates[i] = ingestion.Candidate{Data: &items[i].Text, Metadata: items[i].Metadata}
	}
	req := ingestion.AddRequest{
		DatasetID: datasetID,
		TenantID:  tenantID,
		Documents: candidates,
		StoreData: l.config.StoreData,
	}

	return ai.RetryWithBackoff(ctx, func() error {
		_, err := l.adder.Add(ctx, req)
		if errors.Is(err, core.ErrValidation) {
			return backoff.Permanent(err)
		}
		if err != nil {
			l.logger.Warn("batch failed", "dataset", datasetID, "documents", len(items), "err", err)
		}
		return err
	}, l.config.MaxRetries, l.config.RetryDelay, 8*l.config.RetryDelay)
}
