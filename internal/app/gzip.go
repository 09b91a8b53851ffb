package app

import (
	"compress/gzip"
	"net/http"
	"strings"
)

// gzipResponseWriter сжимает ответ, если он JSON или HTML. Решение принимается на WriteHeader
type gzipResponseWriter struct {
	http.ResponseWriter
	gz          *gzip.Writer
	wroteHeader bool
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true

	contentType := g.Header().Get("Content-Type")
	if status != http.StatusNoContent && status != http.StatusNotModified &&
		(strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(contentType, "text/html")) {
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Add("Vary", "Accept-Encoding")
		g.Header().Del("Content-Length")
		g.gz = gzip.NewWriter(g.ResponseWriter)
	}
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	if g.gz != nil {
		return g.gz.Write(b)
	}
	return g.ResponseWriter.Write(b)
}

func (g *gzipResponseWriter) close() error {
	if g.gz == nil {
		return nil
	}
	return g.gz.Close()
}

// GzipHandle мидлварь для работы со сжатием: распаковывает gzip тело запроса
// и сжимает ответ, если клиент это поддерживает
func GzipHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Проверка на то, что клиент прислал пожатый контент
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "Invalid gzip body", http.StatusBadRequest)
				return
			}
			defer func() {
				_ = gz.Close()
			}()
			r.Body = gz
		}

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gw := &gzipResponseWriter{ResponseWriter: w}
		defer func() {
			_ = gw.close()
		}()
		next.ServeHTTP(gw, r)
	})
}
