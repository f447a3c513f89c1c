package middleware

import (
	"net/http"
	"strings"
)

// IsXHR reports whether the request comes from page scripts rather than a
// browser navigation.
func IsXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		r.Header.Get("Content-Type") == "application/json" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// AuthMiddleware sprawdza, czy użytkownik ma ważną sesję. Bez hasła w
// konfiguracji przepuszcza wszystko.
func AuthMiddleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Enabled() || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(SessionCookie)
			if err != nil || sessions.Validate(cookie.Value) != nil {
				// Jeśli to zapytanie AJAX/API, zwróć 401
				if IsXHR(r) || strings.HasPrefix(r.URL.Path, "/api/") {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				// Dla zwykłych żądań przekieruj na login
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Pozwól na dostęp do strony logowania, metryk i plików statycznych bez uwierzytelnienia
func isPublic(path string) bool {
	return path == "/login" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/assets/")
}
