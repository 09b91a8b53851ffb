package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dessources/Go-rate-limited-url-shortener/auth"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/ratelimit"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/store"
	"github.com/dessources/Go-rate-limited-url-shortener/models"
)

// Заголовки ответа 429
const (
	HeaderRateLimitTier = "X-RateLimit-Tier"
	HeaderRetryAfter    = "Retry-After"
)

// Коды причин в теле ошибки
const (
	ReasonInvalidURL        = "invalid_url"
	ReasonURLTooLong        = "url_too_long"
	ReasonUnsupportedScheme = "unsupported_scheme"
	ReasonBadRequest        = "bad_request"
	ReasonUnauthorized      = "unauthorized"
	ReasonNotFound          = "not_found"
	ReasonGlobalRateLimited = "global_rate_limited"
	ReasonClientRateLimited = "client_rate_limited"
	ReasonInternal          = "internal"
)

// errBadRequest тело запроса не разобрано
var errBadRequest = errors.New("bad request")

type apiError struct {
	status  int
	reason  string
	message string
}

// classify переводит ошибку домена в статус и сообщение для клиента
func (h *Handler) classify(err error) apiError {
	switch {
	case errors.Is(err, errBadRequest):
		return apiError{http.StatusBadRequest, ReasonBadRequest,
			"Oops, we couldn't process your request. Please try again later."}
	case errors.Is(err, store.ErrURLTooLong):
		return apiError{http.StatusBadRequest, ReasonURLTooLong,
			fmt.Sprintf("Your link is too long. Max length is %d characters.", h.Service.Links.Policy().MaxLength)}
	case errors.Is(err, store.ErrUnsupportedScheme):
		return apiError{http.StatusBadRequest, ReasonUnsupportedScheme,
			"Your link uses an invalid protocol. Please provide a link starting with http:// or https:// ."}
	case errors.Is(err, store.ErrInvalidURL):
		return apiError{http.StatusBadRequest, ReasonInvalidURL,
			"Invalid URL. Please provide a valid link e.g. https://example.com/very/long/url/..."}
	case errors.Is(err, auth.ErrUnauthorized):
		return apiError{http.StatusUnauthorized, ReasonUnauthorized,
			"Missing or invalid API key."}
	case errors.Is(err, store.ErrLinkNotFound):
		return apiError{http.StatusNotFound, ReasonNotFound,
			"We couldn't find a link with this code."}
	case errors.Is(err, ratelimit.ErrGlobalRateLimited):
		return apiError{http.StatusTooManyRequests, ReasonGlobalRateLimited,
			"The service is receiving too many requests right now. Please try again in a few seconds."}
	case errors.Is(err, ratelimit.ErrClientRateLimited):
		return apiError{http.StatusTooManyRequests, ReasonClientRateLimited,
			"You are sending requests too fast. Please slow down and try again shortly."}
	default:
		return apiError{http.StatusInternalServerError, ReasonInternal,
			"Something broke on our end. Please try again later."}
	}
}

// writeError пишет JSON ошибку. Внутренние ошибки логируются, клиенту уходит общий текст
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := h.classify(err)

	if e.status == http.StatusInternalServerError {
		h.logger.Errorw("request failed",
			"uri", r.RequestURI,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}

	writeJSON(w, e.status, models.ErrorResponse{ErrorMessage: e.message, Reason: e.reason})
}

// writeRateLimited ответ 429 с уровнем отказа и Retry-After
func (h *Handler) writeRateLimited(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	w.Header().Set(HeaderRateLimitTier, d.Tier.String())
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(d.RetryAfter)))

	// при выключенной трассировке спан no-op
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("ratelimit.tier", d.Tier.String()),
		attribute.Int64("ratelimit.retry_after_ms", d.RetryAfter.Milliseconds()),
	)

	h.logger.Debugw("request rejected by rate limiter",
		"tier", d.Tier.String(),
		"retry_after", d.RetryAfter,
		"request_id", RequestIDFromContext(r.Context()),
	)
	h.writeError(w, r, d.Err())
}

// retryAfterSeconds округляет вверх, минимум 1 секунда
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
