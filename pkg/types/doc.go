// Package types provides the chunk data model shared by the chunkers, the
// store and the MCP server.
//
// # Chunk
//
// A Chunk is a bounded, semantically coherent slice of a source file:
//
//	chunk := types.NewChunk(body, "src/app.py", 0, 42, meta)
//	fmt.Println(chunk.ID()) // proj_src_app_py_0
//
// Chunk identity is deterministic. ChunkID combines the project id, the
// original path (with '/', '\' and '.' replaced by '_') and the chunk index,
// so re-chunking an unchanged file produces the same ids and a store can
// upsert instead of duplicating.
//
// # Metadata
//
// Metadata is an insertion-ordered string mapping. Every chunk carries
// userId, projectId, filePath, fileName, fileType and chunkIndex; chunkers
// add keys describing structure, such as blockType, jsonPath or h1_context.
//
// # Validation
//
//	if err := chunk.Validate(); err != nil {
//	    return fmt.Errorf("bad chunk: %w", err)
//	}
package types
