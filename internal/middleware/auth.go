// Package middleware содержит HTTP middleware сервиса пополнения баланса.
package middleware

import (
	"crypto/hmac"
	"net/http"
)

// APIKeyHeader содержит ключ оператора для служебных маршрутов.
const APIKeyHeader = "X-API-Key"

// AuthMiddleware пропускает к служебным маршрутам только запросы с ключом оператора.
type AuthMiddleware struct {
	apiKey []byte
}

// NewAuthMiddleware создаёт AuthMiddleware с указанным ключом оператора.
// Пустой ключ отключает служебные маршруты: любой запрос получит 404.
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: []byte(apiKey)}
}

// Enabled сообщает, задан ли ключ оператора.
func (a *AuthMiddleware) Enabled() bool {
	return len(a.apiKey) > 0
}

// Middleware проверяет заголовок X-API-Key.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" || !hmac.Equal([]byte(key), a.apiKey) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
