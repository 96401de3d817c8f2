// Package storage provides SQLite-based persistence for chunked project data.
//
// The storage layer manages:
//   - Projects, identified by the caller-supplied project id
//   - Files with their content class and SHA-256 content hash
//   - Chunks, keyed by the deterministic chunk id
//   - Index run history
//
// # Database Schema
//
// Tables:
//   - projects: owner, root path and totals
//   - files: relative paths, hashes, chunk counts and chunk errors
//   - chunks: content, token count and ordered JSON metadata
//   - index_runs: one row per indexing pass
//
// # Deterministic Upserts
//
// A chunk id is derived from project, path and position, so re-chunking a
// file overwrites rows in place. UpsertChunk reports whether the row changed;
// rows with identical content hash and metadata are left untouched. When a
// file shrinks, DeleteChunksFrom removes the stale tail:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//	for _, c := range chunks {
//	    if _, err := tx.UpsertChunk(ctx, storage.FromTypesChunk(c, file.ID)); err != nil {
//	        return err
//	    }
//	}
//	if _, err := tx.DeleteChunksFrom(ctx, file.ID, len(chunks)); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
