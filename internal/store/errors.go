package store

import "errors"

// Ошибки хранилища. Сверяются через errors.Is, наружу в HTTP/gRPC их переводит диспетчер
var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrURLTooLong         = errors.New("url too long")
	ErrUnsupportedScheme  = errors.New("unsupported url scheme")
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
	ErrLinkNotFound       = errors.New("link not found")
)
