// Package site serves the embedded tracker script, the demo form and the
// analytics dashboard page.
package site

import (
	"context"
	"net/http"
)

// TrackerPath is where the capture script is served.
const TrackerPath = "/tracker/formwizard-tracker.js"

// Register attaches the embedded site routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.HandleFunc("GET "+TrackerPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	})
	mux.Handle("GET /dashboard.html", files)
	mux.Handle("GET /{$}", files)
}
