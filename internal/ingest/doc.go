// Package ingest feeds memory fragments through the embedding service
// and into a tiered vector store in concurrent batches.
//
// # Basic Usage
//
//	ing := ingest.New(emb, store)
//
//	stats, err := ing.IngestFragments(ctx, inputs, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("added %d, failed %d in %v\n",
//	    stats.FragmentsAdded, stats.FragmentsFailed, stats.Duration)
//
// # Input Preparation
//
// Before any network call, inputs are normalized:
//
//   - blank IDs are assigned fresh UUIDs
//   - duplicate IDs collapse to the last occurrence (last write wins)
//   - empty content is rejected per item, not per batch
//
// # Batching and Concurrency
//
// Work is split into batches sized by the embedder's batch capacity and
// processed by a semaphore-bounded worker pool:
//
//	semaphore := make(chan struct{}, workers)
//	g, gctx := errgroup.WithContext(ctx)
//
//	for each batch {
//	    g.Go(func() error {
//	        semaphore <- struct{}{}        // acquire
//	        defer func() { <-semaphore }() // release
//	        embed and store the batch
//	    })
//	}
//
// Within a batch, fragments are added to the store in input order.
//
// # Error Handling
//
// IngestFragments returns an error only for cancellation or when a run
// is already active (ErrIngestInProgress). Everything else is partial
// failure, reported through Statistics:
//
//	stats, err := ing.IngestFragments(ctx, inputs, nil)
//	if stats.FragmentsFailed > 0 {
//	    for _, msg := range stats.ErrorMessages {
//	        log.Printf("ingest: %s", msg)
//	    }
//	}
//
// An embedding failure fails every fragment in its batch; a store
// rejection (for example a dimension mismatch) fails only that
// fragment. ErrorMessages keeps the earliest failures, capped by
// Config.MaxErrors.
package ingest
