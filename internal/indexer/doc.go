// Package indexer coordinates the end-to-end chunking pipeline for a
// project directory.
//
// # Basic Usage
//
//	router, _ := chunker.NewRouter(tok, cfg.Limits(), logger)
//	idx := indexer.New(store, router, logger, metrics.New(nil))
//
//	stats, err := idx.IndexProject(ctx, "/path/to/project", "proj-1", "user-1", &indexer.Config{
//	    Workers:          4,
//	    MaxFileSizeBytes: cfg.MaxFileSizeBytes,
//	})
//
//	fmt.Printf("Indexed %d files into %d chunks in %v\n",
//	    stats.FilesIndexed, stats.ChunksCreated, stats.Duration)
//
// # Indexing Pipeline
//
//  1. Discovery: walk the tree, skipping hidden, vendor and node_modules
//     directories, unsupported or ignored files and files above the size cap
//  2. Incremental decision: compare SHA-256 content hashes, skip unchanged
//     files unless Config.Force is set
//  3. Chunk: route each file to the chunker for its content class (parallel)
//  4. Store: upsert the file row and its chunks in one transaction, then
//     delete chunks past the new end of the file
//  5. Prune: delete files that disappeared since the previous run
//
// # Concurrency
//
// Files are chunked by a worker pool bounded by a weighted semaphore. Writes
// are serialised so SQLite sees a single writer. A file that fails to read,
// chunk or store is counted in Statistics.FilesFailed and never stops the
// others. Cancellation is checked between files.
//
// Only one IndexProject call runs at a time per Indexer; a second concurrent
// call returns ErrIndexInProgress.
//
// # Run History
//
// Every run gets a UUID that appears in log lines and in the index_runs table,
// together with its counters.
//
// # In-Memory Chunking
//
// ChunkContent and ChunkFile run the same chunkers without touching storage.
package indexer
