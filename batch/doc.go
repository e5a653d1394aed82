// Package batch partitions record sets into bounded chunks and fans chunked
// work out over a worker pool.
//
// Split is a lazy, order-preserving partition. Map and Each submit one task
// per chunk to a Runner, wait for all of them, and report the first failing
// chunk in chunk order. Map flattens results back in chunk order so callers
// see a single sequence, as if the work had been done in one call.
//
//	runner, err := batch.NewRunner(batch.WithPoolSize(8))
//	if err != nil {
//	    return err
//	}
//	defer runner.Release()
//
//	docs, err := batch.Map(ctx, runner, batch.Chunks(hashes, 50), lookup)
package batch
