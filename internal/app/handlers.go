package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/store"
	"github.com/dessources/Go-rate-limited-url-shortener/models"
)

// запас на JSON обёртку поверх максимальной длины ссылки
const bodyOverhead = 1 << 10

// stage шаг обработки запроса. Запрос проходит шаги строго по порядку
// и останавливается на первом отказе
type stage int

const (
	stageReceived stage = iota
	stageValidated
	stageGlobalChecked
	stageClientChecked
	stageProcessed
	stageResponded
)

var stageNames = [...]string{"received", "validated", "global_checked", "client_checked", "processed", "responded"}

func (s stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Handler HTTP диспетчер
type Handler struct {
	Service        *Service
	logger         *zap.SugaredLogger
	baseURL        string
	staticDir      string
	streamInterval time.Duration

	// streamsDone закрывается при остановке сервера, потоки метрик завершаются сразу
	streamsDone chan struct{}
	closeOnce   sync.Once
}

// NewHandler создаёт диспетчер
func NewHandler(service *Service, logger *zap.SugaredLogger, opts Options) *Handler {
	interval := opts.StreamInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Handler{
		Service:        service,
		logger:         logger,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		staticDir:      opts.StaticDir,
		streamInterval: interval,
		streamsDone:    make(chan struct{}),
	}
}

// CloseStreams завершает открытые потоки метрик. http.Server.Shutdown не отменяет
// контексты запросов, поэтому вешается через RegisterOnShutdown
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() {
		close(h.streamsDone)
	})
}

func (h *Handler) shortURL(code string) string {
	if h.baseURL == "" {
		return ""
	}
	return h.baseURL + "/s/" + code
}

// cancelled true, если клиент ушёл. Проверяется между шагами, шаг не прерывается
func (h *Handler) cancelled(r *http.Request, st stage) bool {
	if err := r.Context().Err(); err != nil {
		h.logger.Debugw("request cancelled", "stage", st.String(), "request_id", RequestIDFromContext(r.Context()))
		return true
	}
	return false
}

// ShortenHandler POST /api/shorten.
// Порядок: ключ (middleware), тело и ссылка, глобальный bucket, bucket клиента, запись
func (h *Handler) ShortenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := IdentityFromContext(ctx)

	policy := h.Service.Links.Policy()
	r.Body = http.MaxBytesReader(w, r.Body, int64(policy.MaxLength)+bodyOverhead)

	var req models.ShortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, store.ErrURLTooLong)
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	if err := h.Service.Links.Validate(req.Original); err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.cancelled(r, stageValidated) {
		return
	}
	decision := h.Service.Limiter.Admit(identity)
	if !decision.Allowed {
		h.writeRateLimited(w, r, decision)
		return
	}

	if h.cancelled(r, stageClientChecked) {
		return
	}
	link, err := h.Service.Links.Shorten(ctx, req.Original)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ShortenResponse{
		ShortCode: link.Code,
		ShortURL:  h.shortURL(link.Code),
	})

	h.logger.Debugw("link shortened",
		"code", link.Code,
		"stage", stageResponded.String(),
		"request_id", RequestIDFromContext(ctx),
	)
}

// RedirectHandler GET /s/{code}. Проходит только глобальный bucket
func (h *Handler) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	decision := h.Service.Limiter.AdmitGlobal()
	if !decision.Allowed {
		h.writeRateLimited(w, r, decision)
		return
	}
	if h.cancelled(r, stageGlobalChecked) {
		return
	}

	originalURL, err := h.Service.Links.Resolve(r.Context(), code)
	if errors.Is(err, store.ErrLinkNotFound) {
		h.NotFoundHandler(w, r)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, originalURL, http.StatusFound)
}

// LinkInfoHandler GET /api/links/{code}. Счётчик переходов не меняется
func (h *Handler) LinkInfoHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	decision := h.Service.Limiter.Admit(identity)
	if !decision.Allowed {
		h.writeRateLimited(w, r, decision)
		return
	}
	if h.cancelled(r, stageClientChecked) {
		return
	}

	link, err := h.Service.Links.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.LinkResponse{
		Code:        link.Code,
		ShortURL:    h.shortURL(link.Code),
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
		HitCount:    link.HitCount,
	})
}

// MetricsHandler GET /api/metrics. Ограничителем не учитывается
func (h *Handler) MetricsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse(h.Service.Metrics.Snapshot()))
}

// PingHandler проверка доступности хранилища
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Links.Ping(r.Context()); err != nil {
		h.logger.Errorw("storage ping failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
