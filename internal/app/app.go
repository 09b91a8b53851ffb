// Package app HTTP диспетчер сервиса: маршруты, middleware, перевод ошибок домена в ответы.
// Только этот пакет знает про статусы и формат тел
package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/metrics"
)

// Options параметры HTTP слоя
type Options struct {
	BaseURL        string
	StreamInterval time.Duration
	StaticDir      string
	TrustedSubnet  string
	CORSOrigins    []string
	// Exporter включает /metrics в формате Prometheus
	Exporter *metrics.Exporter
}

func (o Options) httpMetrics() *metrics.HTTPMetrics {
	if o.Exporter == nil {
		return nil
	}
	return o.Exporter.HTTP
}

// Server хендлер и собранный роутер
type Server struct {
	Handler *Handler
	Router  http.Handler
}

// NewServer инициализирует диспетчер и роутер
func NewServer(service *Service, logger *zap.SugaredLogger, opts Options) *Server {
	h := NewHandler(service, logger, opts)

	return &Server{
		Handler: h,
		Router:  NewRouter(h, logger, opts),
	}
}
