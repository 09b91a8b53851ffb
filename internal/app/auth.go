package app

import (
	"context"
	"net/http"

	"github.com/dessources/Go-rate-limited-url-shortener/auth"
)

type myKeyType string

const (
	identityKey  myKeyType = "identity"
	requestIDKey myKeyType = "request_id"
)

// RequireAPIKey проверяет X-API-Key и кладёт идентичность клиента в контекст.
// Без ключа запрос дальше не идёт и токены ограничителя не тратит
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.Service.Auth.Identify(auth.FromRequest(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext идентичность клиента, положенная RequireAPIKey
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	return identity, ok
}
