package store

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultMaxURLLength максимальная длина ссылки по умолчанию
const DefaultMaxURLLength = 2048

// Policy правила приёма ссылок
type Policy struct {
	MaxLength int
	Schemes   []string
}

// DefaultPolicy http/https и не длиннее DefaultMaxURLLength
func DefaultPolicy() Policy {
	return Policy{
		MaxLength: DefaultMaxURLLength,
		Schemes:   []string{"http", "https"},
	}
}

// Validate проверяет ссылку. Порядок проверок: длина, разбор, схема
func (p Policy) Validate(raw string) error {
	_, err := p.Normalize(raw)
	return err
}

// Normalize проверяет ссылку и возвращает её без пробелов по краям.
// Сохранять нужно именно этот результат, а не исходную строку
func (p Policy) Normalize(raw string) (string, error) {
	if p.MaxLength > 0 && len(raw) > p.MaxLength {
		return "", fmt.Errorf("%w: %d > %d", ErrURLTooLong, len(raw), p.MaxLength)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURL
	}

	if !p.allows(u.Scheme) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	return raw, nil
}

func (p Policy) allows(scheme string) bool {
	for _, s := range p.Schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}
