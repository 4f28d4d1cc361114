package api

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// Endpoints lists every route the server answers
var Endpoints = []Endpoint{
	{Path: "/api", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/api/health", Method: "GET", Description: "Home Assistant reachability - {ok, title, ts}"},
	{Path: "/api/dashboard", Method: "GET", Description: "Dashboard snapshot - {config, states, title, ts}"},
	{Path: "/api/toggle", Method: "POST", Description: "Toggle a light - body {\"entity_id\": \"light.kitchen\"}"},
	{Path: "/api/action", Method: "POST", Description: "Run a quick action - body {\"label\": \"Gute Nacht\"}"},
	{Path: "/api/nummer12/health", Method: "GET", Description: "Chat backend reachability - {ok, connected, endpoint}"},
	{Path: "/api/nummer12/chat", Method: "POST", Description: "Send a chat message - body {\"message\": \"...\"}"},
	{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
}

// handleSitemap returns a list of all available API endpoints, as HTML for
// browsers and plain text otherwise
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")
	title := html.EscapeString(s.settings.Title)

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>%s API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
        a { color: #569cd6; text-decoration: none; }
    </style>
</head>
<body>
    <h1>%s API</h1>
`, title, title)
		for _, ep := range Endpoints {
			path := html.EscapeString(ep.Path)
			if ep.Method == http.MethodGet {
				path = fmt.Sprintf(`<a href="%s">%s</a>`, path, path)
			}
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, path, html.EscapeString(ep.Description))
		}
		fmt.Fprint(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		heading := s.settings.Title + " API"
		fmt.Fprintf(w, "%s\n%s\n\n", heading, strings.Repeat("=", len([]rune(heading))))
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range Endpoints {
			fmt.Fprintf(w, "  %-6s %-22s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExample:\n\n")
		fmt.Fprintf(w, "  curl -s http://%s/api/dashboard | jq\n", r.Host)
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}
