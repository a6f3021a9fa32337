// Package assets serves the console's embedded stylesheet and script.
package assets

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static/*
var static embed.FS

// Handler serves the embedded assets below prefix, e.g. "/assets/".
// Unknown asset paths get a 404; anything else is not an asset request.
func Handler(prefix string) http.Handler {
	fsys, err := fs.Sub(static, "static")
	if err != nil {
		panic("failed to get static subdirectory: " + err.Error())
	}

	fileServer := http.StripPrefix(prefix, http.FileServer(http.FS(fsys)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if !isAssetPath(name) {
			http.NotFound(w, r)
			return
		}
		if _, err := fs.Stat(fsys, name); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}

// isAssetPath returns true if the path names a static asset file.
func isAssetPath(name string) bool {
	if name == "" || strings.HasSuffix(name, "/") {
		return false
	}
	switch path.Ext(name) {
	case ".js", ".css", ".map", ".svg", ".ico", ".png", ".woff2":
		return true
	}
	return false
}
