package webui

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler serving the management UI.
//
// When dir names an existing directory the files are read from disk on every
// request; otherwise the embedded copy is used. Unknown paths fall back to
// index.html so the UI's hash routes survive a reload. API and command
// prefixes are never rewritten and answer 404.
//
// Panics if the embedded assets are missing, which is a build error.
func Handler(dir string) http.Handler {
	var fileSystem http.FileSystem

	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}

	// Fall back to embedded assets if dir was empty or didn't exist
	if fileSystem == nil {
		webFS, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("webui: failed to load embedded web assets: %v", err))
		}
		fileSystem = http.FS(webFS)
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Assets are not content-hashed, so always revalidate.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean(r.URL.Path)
		if upath == "." {
			upath = "/"
		}

		if upath == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath)
		if err != nil {
			if hasReservedPrefix(upath) {
				http.NotFound(w, r)
				return
			}
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()

		fileServer.ServeHTTP(w, r)
	})
}

// reservedPrefixes are the server's own route trees.
var reservedPrefixes = []string{"/api/", "/play/", "/stop/", "/status/", "/group/"}

func hasReservedPrefix(p string) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}
