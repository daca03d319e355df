package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/filesense/internal/searcher"
)

// emptySchema is the input schema of tools without arguments
func emptySchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
}

// indexFolderTool returns the tool definition for index_folder
func indexFolderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_folder",
		Description: "Scan a folder and enrich every new or changed file with labels, tags, captions, extracted text and embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the folder to index",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-enrich files even when their content is unchanged",
					"default":     false,
				},
				"max_files": map[string]interface{}{
					"type":        "integer",
					"description": "Stop scanning after this many files (0 = no limit)",
					"minimum":     0,
				},
				"include_hidden": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index hidden files and folders",
					"default":     false,
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Concurrent workers for this run (1-50)",
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchFilesTool returns the tool definition for search_files
func searchFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_files",
		Description: "Search the catalog with natural language. Dates (\"last week\", \"march 2024\"), types (\"screenshots\", \"pdfs\"), label:, tag:, has:ocr and has:vision are understood inside the query.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query; may be empty when a filter is given",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to a file type group",
					"enum":        []string{"images", "screenshots", "documents", "pdfs", "spreadsheets", "videos", "audio", "code"},
				},
				"date_start": map[string]interface{}{
					"type":        "string",
					"description": "Earliest file date (YYYY-MM-DD or RFC 3339)",
				},
				"date_end": map[string]interface{}{
					"type":        "string",
					"description": "Latest file date (YYYY-MM-DD or RFC 3339), inclusive",
				},
				"extensions": map[string]interface{}{
					"type":        "array",
					"description": "Restrict to these extensions, e.g. [\".jpg\", \".png\"]",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "Serve repeated queries from the result cache",
					"default":     true,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Catalog statistics, the state of the current indexing run and the last cleanup",
		InputSchema: emptySchema(),
	}
}

func cleanupTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cleanup",
		Description: "Remove catalog entries whose files no longer exist",
		InputSchema: emptySchema(),
	}
}

func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Rebuild the full-text index from the catalog",
		InputSchema: emptySchema(),
	}
}

// updateFileTool returns the tool definition for update_file
func updateFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_file",
		Description: "Edit a catalog entry: label, caption, user tags or metadata; record a move; or re-run enrichment",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file": map[string]interface{}{
					"type":        "string",
					"description": "Catalog id or absolute path of the file",
				},
				"label": map[string]interface{}{
					"type":        "string",
					"description": "New label",
				},
				"caption": map[string]interface{}{
					"type":        "string",
					"description": "New caption",
				},
				"user_tags": map[string]interface{}{
					"type":        "array",
					"description": "Replaces the user tags",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Replaces the user metadata object",
				},
				"new_path": map[string]interface{}{
					"type":        "string",
					"description": "The file's new location after a move",
				},
				"reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "Re-run enrichment for this file",
					"default":     false,
				},
			},
			Required: []string{"file"},
		},
	}
}

// suggestTool returns the tool definition for suggest
func suggestTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest",
		Description: "Previous queries starting with a prefix; recent searches when the prefix is empty",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Typed query prefix",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum suggestions (default 10)",
					"minimum":     1,
					"maximum":     50,
				},
			},
		},
	}
}

func pauseIndexingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "pause_indexing",
		Description: "Pause the running index job after the files in flight finish",
		InputSchema: emptySchema(),
	}
}

func resumeIndexingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resume_indexing",
		Description: "Resume a paused index job",
		InputSchema: emptySchema(),
	}
}

func cancelIndexingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_indexing",
		Description: "Cancel the running index job; files already stored are kept",
		InputSchema: emptySchema(),
	}
}
