package web

import "embed"

// FS holds the dashboard page, its stylesheet and the WebSocket client.
//
//go:embed *.html *.css *.js
var FS embed.FS
