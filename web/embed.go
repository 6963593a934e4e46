// Package web embeds the HTML templates and static assets served by the app.
package web

import "embed"

// EmbeddedFS holds templates/ and static/. Release builds serve from it;
// debug mode reads the same tree from disk.
//
//go:embed templates static
var EmbeddedFS embed.FS
