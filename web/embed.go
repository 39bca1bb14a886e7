// Package web embeds the widget bootstrap script that customer sites load
// with a single script tag. The script renders the chat bubble and talks to
// the backend over SSE.
package web

import (
	"bytes"
	"embed"
	"net/http"
	"time"
)

//go:embed static
var staticFS embed.FS

var startTime = time.Now()

// WidgetHandler serves the embedded widget loader at /widget.js.
func WidgetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		script, err := staticFS.ReadFile("static/widget.js")
		if err != nil {
			http.Error(w, "widget script unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeContent(w, r, "widget.js", startTime, bytes.NewReader(script))
	}
}
