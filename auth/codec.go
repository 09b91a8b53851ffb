// Package auth проверяет API ключи и выводит из ключа идентичность клиента.
//
// Идентичность это HMAC-SHA256 от ключа на секрете сервиса: один и тот же ключ всегда даёт
// один и тот же идентификатор, а сам ключ не попадает ни в логи, ни в память ограничителя.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// HeaderAPIKey заголовок с API ключом
const HeaderAPIKey = "X-API-Key"

// ErrUnauthorized ключ не передан или не входит в список разрешённых
var ErrUnauthorized = errors.New("unauthorized")

// KeyRing набор разрешённых ключей и секрет для отпечатков
type KeyRing struct {
	secret []byte
	// отпечатки разрешённых ключей; пустой список пускает любой непустой ключ
	allowed [][]byte
}

// NewKeyRing создаёт набор. Пустые строки в keys пропускаются
func NewKeyRing(secret string, keys []string) *KeyRing {
	k := &KeyRing{secret: []byte(secret)}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		k.allowed = append(k.allowed, k.sign(key))
	}
	return k
}

// Open true, если список ключей пуст и принимается любой ключ
func (k *KeyRing) Open() bool {
	return len(k.allowed) == 0
}

// Identify проверяет ключ и возвращает идентичность клиента
func (k *KeyRing) Identify(apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrUnauthorized
	}

	sum := k.sign(apiKey)
	if !k.Open() && !k.known(sum) {
		return "", ErrUnauthorized
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// Fingerprint идентичность для ключа без проверки списка
func (k *KeyRing) Fingerprint(apiKey string) string {
	return base64.RawURLEncoding.EncodeToString(k.sign(strings.TrimSpace(apiKey)))
}

// FromRequest ключ из заголовка запроса
func FromRequest(r *http.Request) string {
	return r.Header.Get(HeaderAPIKey)
}

func (k *KeyRing) sign(apiKey string) []byte {
	h := hmac.New(sha256.New, k.secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// known сравнивает со всеми ключами за постоянное время
func (k *KeyRing) known(sum []byte) bool {
	found := 0
	for _, a := range k.allowed {
		found |= subtle.ConstantTimeCompare(a, sum)
	}
	return found == 1
}
