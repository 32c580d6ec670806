package httpapi

import (
	"net/http"
	"time"

	praxis "github.com/praxis-id/praxis"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// refreshCookiePaths are the only endpoints a browser should present
// the refresh token to. A cookie carries exactly one Path, so the
// token is set once per path.
var refreshCookiePaths = []string{"/refresh", "/logout"}

func (h *Handler) setSessionCookies(w http.ResponseWriter, pair praxis.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   !h.cfg.Insecure,
		SameSite: http.SameSiteStrictMode,
	})
	for _, path := range refreshCookiePaths {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookie,
			Value:    pair.RefreshToken,
			Path:     path,
			Domain:   h.cfg.CookieDomain,
			Expires:  pair.RefreshExpires,
			HttpOnly: true,
			Secure:   !h.cfg.Insecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  expired,
		HttpOnly: true,
		Secure:   !h.cfg.Insecure,
		SameSite: http.SameSiteStrictMode,
	})
	for _, path := range refreshCookiePaths {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookie,
			Value:    "",
			Path:     path,
			Domain:   h.cfg.CookieDomain,
			Expires:  expired,
			HttpOnly: true,
			Secure:   !h.cfg.Insecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
