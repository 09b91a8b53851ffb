package app

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const notFoundPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>404 | Link not found</title>
</head>
<body>
<h1>404</h1>
<p>We couldn't find the link you're looking for. It may have been mistyped.</p>
<p><a href="/">Shorten a new link</a></p>
</body>
</html>
`

// hidingFileSystem не отдаёт .txt файлы из каталога фронтенда
type hidingFileSystem struct {
	http.FileSystem
}

func (fsys hidingFileSystem) Open(name string) (http.File, error) {
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return nil, fs.ErrNotExist
	}
	return fsys.FileSystem.Open(name)
}

// NotFoundHandler HTML страница 404. Если в каталоге фронтенда есть 404.html, отдаётся она
func (h *Handler) NotFoundHandler(w http.ResponseWriter, _ *http.Request) {
	page := []byte(notFoundPage)
	if h.staticDir != "" {
		if custom, err := os.ReadFile(filepath.Join(h.staticDir, "404.html")); err == nil {
			page = custom
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(page)
}

// StaticHandler раздаёт собранный фронтенд из dir
func (h *Handler) StaticHandler(dir string) http.Handler {
	files := http.FileServer(hidingFileSystem{http.Dir(dir)})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if strings.HasSuffix(strings.ToLower(r.URL.Path), ".txt") {
			h.NotFoundHandler(w, r)
			return
		}
		if _, err := os.Stat(name); err != nil {
			h.NotFoundHandler(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
