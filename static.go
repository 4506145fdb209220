package main

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"nowplaying-proxy-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// staticHandler serves files from the UI bundle and the public directory,
// in that order. Any other path gets the bundle's index.html so the client
// can do its own routing.
type staticHandler struct {
	roots []string
	index string
}

func newStaticHandler(distDir string, extraRoots ...string) *staticHandler {
	return &staticHandler{
		roots: append([]string{distDir}, extraRoots...),
		index: filepath.Join(distDir, "index.html"),
	}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if clean != "/" {
		for _, root := range h.roots {
			if root == "" {
				continue
			}
			full := filepath.Join(root, filepath.FromSlash(clean))
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				serveFile(w, r, full)
				return
			}
		}
	}

	if _, err := os.Stat(h.index); err != nil {
		log.Warnf("%s No UI bundle at %s", logcolors.LogStatic, h.index)
		http.NotFound(w, r)
		return
	}
	serveFile(w, r, h.index)
}

// serveFile writes the file without http.ServeFile's index.html redirect.
func serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
