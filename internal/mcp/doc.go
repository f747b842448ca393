// Package mcp serves codesearch over the Model Context Protocol.
//
// The server speaks stdio and registers four tools backed by the service
// facade: search_code, get_snippet, list_repositories and index_repository.
// Tool failures are reported as tool errors carrying the codesearch error
// code, so an agent can tell a missing index from an unavailable embedder.
package mcp
