package assets

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsAssetPath(t *testing.T) {
	tests := map[string]bool{
		"app.js":        true,
		"app.css":       true,
		"img/logo.svg":  true,
		"":              false,
		"dir/":          false,
		"runs":          false,
		"index.html":    false,
		"app.js.backup": false,
	}
	for name, want := range tests {
		if got := isAssetPath(name); got != want {
			t.Errorf("isAssetPath(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	h := Handler("/assets/")
	tests := []struct {
		path   string
		status int
	}{
		{"/assets/app.js", http.StatusOK},
		{"/assets/app.css", http.StatusOK},
		{"/assets/missing.css", http.StatusNotFound},
		{"/assets/", http.StatusNotFound},
		{"/assets/embed.go", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s: status %d, want %d", tt.path, rec.Code, tt.status)
		}
		if tt.status == http.StatusOK && rec.Header().Get("Cache-Control") != "no-cache" {
			t.Errorf("%s: Cache-Control = %q", tt.path, rec.Header().Get("Cache-Control"))
		}
	}
}
