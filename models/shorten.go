// Package models объекты, которые ходят по HTTP
package models

import "time"

// ShortenRequest тело POST /api/shorten
type ShortenRequest struct {
	Original string `json:"original"`
}

// ShortenResponse ответ с коротким кодом
type ShortenResponse struct {
	ShortCode string `json:"shortCode"`
	ShortURL  string `json:"shortUrl,omitempty"`
}

// LinkResponse сведения о ссылке для GET /api/links/{code}
type LinkResponse struct {
	Code        string    `json:"code"`
	ShortURL    string    `json:"shortUrl,omitempty"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	HitCount    int64     `json:"hitCount"`
}

// ErrorResponse тело любого ответа с ошибкой
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	Reason       string `json:"reason"`
}

// MetricsResponse снимок метрик для GET /api/metrics и потока
type MetricsResponse struct {
	GlobalCapacity        int   `json:"globalCapacity"`
	GlobalTokensAvailable int   `json:"globalTokensAvailable"`
	GlobalTokensUsed      int   `json:"globalTokensUsed"`
	ActiveClientCount     int64 `json:"activeClientCount"`
	TotalLinksStored      int64 `json:"totalLinksStored"`
	LinksResolved         int64 `json:"linksResolved"`
	Admitted              int64 `json:"admitted"`
	GlobalRejected        int64 `json:"globalRejected"`
	ClientRejected        int64 `json:"clientRejected"`
}
