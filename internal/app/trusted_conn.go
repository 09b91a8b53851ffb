package app

import (
	"net"
	"net/http"
	"strings"
)

// clientIP адрес клиента: X-Real-IP, если его выставил прокси, иначе адрес соединения
func clientIP(r *http.Request) net.IP {
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if ip := net.ParseIP(realIP); ip != nil {
			return ip
		}
		// Санитайзим IP вида host:port
		if host, _, err := net.SplitHostPort(realIP); err == nil {
			return net.ParseIP(host)
		}
		return nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

// RequireTrustedIP пропускает только запросы из доверенной подсети (CIDR).
// Пустая или некорректная подсеть закрывает эндпоинт полностью
func RequireTrustedIP(subnet string) func(http.Handler) http.Handler {
	var trusted *net.IPNet
	if subnet != "" {
		if _, n, err := net.ParseCIDR(subnet); err == nil {
			trusted = n
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trusted == nil {
				http.Error(w, "This endpoint is forbidden", http.StatusForbidden)
				return
			}

			ip := clientIP(r)
			if ip == nil || !trusted.Contains(ip) {
				http.Error(w, "Access denied", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
