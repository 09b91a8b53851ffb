package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/metrics"
)

type (
	// Берём структуру для хранения сведений об ответе
	responseData struct {
		status int
		size   int
	}

	// Добавляем реализацию http.ResponseWriter
	loggingResponseWriter struct {
		http.ResponseWriter // встраиваем оригинальный http.ResponseWriter
		responseData        *responseData
	}
)

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	if r.responseData.status == 0 {
		r.responseData.status = http.StatusOK
	}
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size // захватываем размер
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode // захватываем код статуса
}

// Flush нужен потоку метрик (SSE)
func (r *loggingResponseWriter) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap для http.ResponseController
func (r *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// WithLogging пишет access log и HTTP метрики. Метка маршрута берётся из шаблона chi, а не из пути
func WithLogging(logger *zap.SugaredLogger, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			responseData := &responseData{}
			lw := &loggingResponseWriter{
				ResponseWriter: w,
				responseData:   responseData,
			}
			h.ServeHTTP(lw, r)

			duration := time.Since(start)
			status := responseData.status
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			} else if status == http.StatusNotFound {
				route = "not_found"
			}
			httpMetrics.Observe(r.Method, route, status, duration)
			// имя спана otelhttp по шаблону маршрута
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + route)

			logger.Infow("request",
				"uri", r.RequestURI,
				"method", r.Method,
				"status", status,
				"duration", duration,
				"size", responseData.size,
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}
