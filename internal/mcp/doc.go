// Package mcp implements the Model Context Protocol (MCP) server for ragchunk.
//
// The server exposes six tools to MCP clients:
//   - chunk_content: Split raw text into chunks without storing them
//   - chunk_file: Read a file from disk and split it into chunks
//   - index_project: Chunk a whole directory and store the chunks incrementally
//   - get_status: Report indexing statistics for a project
//   - list_chunks: Return the stored chunks of one indexed file
//   - estimate_tokens: Measure text with the configured tokenizer
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout is reserved for protocol messages. Logs go to stderr.
//
// # Tool: chunk_content
//
//	Request:
//	{
//	  "name": "chunk_content",
//	  "arguments": {
//	    "content": "# Intro\n\nHello",
//	    "file_path": "docs/intro.md",
//	    "project_id": "p1",
//	    "user_id": "u1"
//	  }
//	}
//
//	Response:
//	{
//	  "file_path": "docs/intro.md",
//	  "chunk_count": 1,
//	  "total_tokens": 2,
//	  "chunks": [
//	    {
//	      "id": "p1_docs_intro_md_0",
//	      "chunk_index": 0,
//	      "tokens": 2,
//	      "content": "Hello",
//	      "metadata": {"userId": "u1", "projectId": "p1", "h1_context": "Intro", ...}
//	    }
//	  ]
//	}
//
// # Tool: index_project
//
//	Request:
//	{
//	  "name": "index_project",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "project_id": "p1",
//	    "user_id": "u1",
//	    "force": false
//	  }
//	}
//
// Unchanged files are skipped by content hash, and files that disappeared
// since the last run are pruned along with their chunks.
//
// # Error Handling
//
// Handler failures are returned as *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: File too large
//   - -32002: Indexing in progress
//   - -32003: File not indexed
package mcp
