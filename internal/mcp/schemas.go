package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ownerProperties are the identity parameters shared by tools that build chunks
func ownerProperties() map[string]interface{} {
	return map[string]interface{}{
		"project_id": map[string]interface{}{
			"type":        "string",
			"description": "Caller-assigned project identifier, copied into chunk metadata",
		},
		"user_id": map[string]interface{}{
			"type":        "string",
			"description": "Caller-assigned user identifier, copied into chunk metadata",
		},
	}
}

// chunkContentTool returns the tool definition for chunk_content
func chunkContentTool() mcp.Tool {
	props := ownerProperties()
	props["content"] = map[string]interface{}{
		"type":        "string",
		"description": "Raw document text to chunk",
	}
	props["file_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Original file path; its extension selects the chunking strategy",
	}
	props["content_class"] = map[string]interface{}{
		"type":        "string",
		"description": "Override the strategy chosen from the file extension",
		"enum":        []string{"code", "markdown", "json", "yaml", "text"},
	}
	props["language"] = map[string]interface{}{
		"type":        "string",
		"description": "Override the language recorded for code chunks",
	}

	return mcp.Tool{
		Name:        "chunk_content",
		Description: "Split text into token-budgeted chunks with structural metadata, without persisting them",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"content", "file_path", "project_id", "user_id"},
		},
	}
}

// chunkFileTool returns the tool definition for chunk_file
func chunkFileTool() mcp.Tool {
	props := ownerProperties()
	props["path"] = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path of the file to read and chunk",
	}
	props["file_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Path recorded in chunk metadata (defaults to the file's base name)",
	}

	return mcp.Tool{
		Name:        "chunk_file",
		Description: "Read a file from disk and split it into token-budgeted chunks, without persisting them",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"path", "project_id", "user_id"},
		},
	}
}

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	props := ownerProperties()
	props["path"] = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the project root directory",
	}
	props["force"] = map[string]interface{}{
		"type":        "boolean",
		"description": "If true, re-chunk all files ignoring content hashes (full rebuild)",
		"default":     false,
	}
	props["workers"] = map[string]interface{}{
		"type":        "integer",
		"description": "Number of concurrent file workers (0 uses the number of CPUs)",
		"minimum":     0,
	}

	return mcp.Tool{
		Name:        "index_project",
		Description: "Chunk every supported file under a directory and store the chunks incrementally",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"path", "project_id", "user_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Get indexing status and statistics for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Project identifier used when indexing",
				},
			},
			Required: []string{"project_id"},
		},
	}
}

// listChunksTool returns the tool definition for list_chunks
func listChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_chunks",
		Description: "List the stored chunks of one indexed file in order",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Project identifier used when indexing",
				},
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "File path relative to the project root",
				},
			},
			Required: []string{"project_id", "file_path"},
		},
	}
}

// estimateTokensTool returns the tool definition for estimate_tokens
func estimateTokensTool() mcp.Tool {
	return mcp.Tool{
		Name:        "estimate_tokens",
		Description: "Estimate the token count of a text with the configured tokenizer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to measure",
				},
			},
			Required: []string{"text"},
		},
	}
}
