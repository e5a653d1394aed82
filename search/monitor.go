package search

import "github.com/poiesic/embedbase/core"

// SearchMonitor observes the stages of a search.
type SearchMonitor interface {
	Start(query Query)
	AfterEmbedding(vector []float32)
	AfterStoreSearch(matches []core.SearchMatch)
	Finish(matches []core.SearchMatch)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                         {}
func (n *noopMonitor) AfterEmbedding(_ []float32)            {}
func (n *noopMonitor) AfterStoreSearch(_ []core.SearchMatch) {}
func (n *noopMonitor) Finish(_ []core.SearchMatch)           {}
