package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dessources/Go-rate-limited-url-shortener/auth"
)

// corsMiddleware разрешает фронтенду с origins передавать API ключ и читать заголовки ограничителя
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Content-Encoding", auth.HeaderAPIKey, HeaderRequestID},
		ExposedHeaders: []string{HeaderRetryAfter, HeaderRateLimitTier, HeaderRequestID},
		MaxAge:         300,
	}).Handler
}

// NewRouter собирает маршруты поверх chi
func NewRouter(h *Handler, logger *zap.SugaredLogger, opts Options) chi.Router {
	httpMetrics := opts.httpMetrics()

	r := chi.NewRouter()
	r.Use(
		RequestID,
		WithLogging(logger, httpMetrics), // Логирование
		Recoverer(logger),
		corsMiddleware(opts.CORSOrigins),
	)

	r.Get("/ping", h.PingHandler)
	r.Get("/s/{code}", h.RedirectHandler)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(GzipHandle) // Сжатие
			r.With(h.RequireAPIKey).Post("/shorten", h.ShortenHandler)
			r.With(h.RequireAPIKey).Get("/links/{code}", h.LinkInfoHandler)
			r.Get("/metrics", h.MetricsHandler)
		})
		// поток не сжимаем: gzip буферизует события
		r.Get("/metrics/stream", h.MetricsStreamHandler)
	})

	if opts.Exporter != nil {
		r.With(RequireTrustedIP(opts.TrustedSubnet)).Method(http.MethodGet, "/metrics", opts.Exporter.Handler())
	}

	if opts.StaticDir != "" {
		r.Handle("/*", h.StaticHandler(opts.StaticDir))
	}
	r.NotFound(h.NotFoundHandler)

	return r
}
