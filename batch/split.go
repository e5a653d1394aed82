package batch

import (
	"iter"
	"slices"
)

// Split partitions records into consecutive chunks of at most size elements.
// Order is preserved. When size <= 0 or len(records) <= size the whole
// collection is yielded as one chunk; an empty collection yields nothing.
// Chunks share the backing array of records but have their capacity clipped,
// so appending to one never overwrites the next.
func Split[T any](records []T, size int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		if len(records) == 0 {
			return
		}
		if size <= 0 || len(records) <= size {
			yield(records[:len(records):len(records)])
			return
		}
		for start := 0; start < len(records); start += size {
			end := min(start+size, len(records))
			if !yield(records[start:end:end]) {
				return
			}
		}
	}
}

// Chunks collects Split into a slice.
func Chunks[T any](records []T, size int) [][]T {
	return slices.Collect(Split(records, size))
}
