// Package mcp implements the Model Context Protocol (MCP) server for filesense.
//
// The server exposes the catalog to AI assistants over stdio:
//   - index_folder: scan and enrich a folder
//   - search_files: natural-language hybrid search
//   - get_status: catalog statistics and the current run
//   - cleanup, rebuild_index: catalog maintenance
//   - update_file: edit labels, tags, captions and metadata, or record a move
//   - suggest: query history
//   - pause_indexing, resume_indexing, cancel_indexing: run control
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Tool: index_folder
//
//	Request:
//	{
//	  "name": "index_folder",
//	  "arguments": {"path": "/home/me/Pictures", "force_reindex": false},
//	  "_meta": {"progressToken": "idx-1"}
//	}
//
//	Response:
//	{
//	  "run_id": "6f0c…",
//	  "indexed": 212,
//	  "skipped": 1840,
//	  "failed": 3,
//	  "cancelled": 0,
//	  "total": 2055,
//	  "duration_ms": 94120,
//	  "errors": [{"path": "/home/me/Pictures/broken.heic", "kind": "readFailure", "message": "…"}]
//	}
//
// When the request carries a progress token, one notifications/progress
// message is sent per finished file.
//
// # Tool: search_files
//
//	Request:
//	{
//	  "name": "search_files",
//	  "arguments": {"query": "receipts from last month", "limit": 10}
//	}
//
//	Response:
//	{
//	  "query": "receipts from last month",
//	  "interpreted": {"text": "receipts", "date_filter": "last month"},
//	  "results": [{"id": 42, "path": "…/scan-0412.png", "label": "receipt", "relevance_score": 0.93, "source": "keyword"}],
//	  "total": 1,
//	  "cache_hit": false
//	}
//
// An empty query is accepted when type, extensions or a date bound is given.
//
// # Error Codes
//
//	-32602  Invalid params
//	-32603  Internal error
//	-32001  Folder not found
//	-32002  Indexing already in progress
//	-32003  File not in catalog
//	-32004  Empty query
package mcp
