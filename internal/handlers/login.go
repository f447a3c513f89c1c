package handlers

import (
	"net/http"

	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/middleware"
)

type loginView struct {
	Error string
}

// LoginPageHandler renders the login form. Without a password configured it
// sends the user straight to the upload page.
func LoginPageHandler(sessions *middleware.Sessions, renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessions.Enabled() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		renderer.Render(w, r, http.StatusOK, "login", "Login", loginView{})
	}
}

func LoginHandler(sessions *middleware.Sessions, renderer *Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessions.Enabled() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		cookie, err := sessions.Login(r.FormValue("password"))
		if err != nil {
			logger.Warning("Failed login from %s", middleware.ClientIP(r))
			if middleware.IsXHR(r) {
				writeJSONError(w, http.StatusUnauthorized, "Invalid password", logger)
				return
			}
			renderer.Render(w, r, http.StatusUnauthorized, "login", "Login", loginView{Error: "Invalid password"})
			return
		}

		// Ustaw cookie po poprawnym logowaniu
		http.SetCookie(w, cookie)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}
