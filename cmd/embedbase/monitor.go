package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/search"
)

// stageReporter prints search stage timings.
type stageReporter struct {
	w     io.Writer
	start time.Time
	last  time.Time
}

var _ search.SearchMonitor = (*stageReporter)(nil)

func newStageReporter(w io.Writer) *stageReporter {
	return &stageReporter{w: w}
}

func (r *stageReporter) lap() time.Duration {
	now := time.Now()
	d := now.Sub(r.last)
	r.last = now
	return d
}

func (r *stageReporter) Start(q search.Query) {
	r.start = time.Now()
	r.last = r.start
	fmt.Fprintf(r.w, "query %q dataset=%s tenant=%q topK=%d\n", q.Text, q.DatasetID, q.TenantID, q.TopK)
}

func (r *stageReporter) AfterEmbedding(vector []float32) {
	fmt.Fprintf(r.w, "embedded query (%d dimensions) in %v\n", len(vector), r.lap())
}

func (r *stageReporter) AfterStoreSearch(matches []core.SearchMatch) {
	fmt.Fprintf(r.w, "store returned %d matches in %v\n", len(matches), r.lap())
}

func (r *stageReporter) Finish(matches []core.SearchMatch) {
	fmt.Fprintf(r.w, "search finished in %v\n", time.Since(r.start))
}
