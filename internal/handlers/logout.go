package handlers

import (
	"net/http"

	"trafficsentinel/internal/middleware"
)

// LogoutHandler clears the session cookie and redirects to the login page.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, middleware.LogoutCookie())
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
