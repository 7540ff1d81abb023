package controllers

import (
	"net/http"
	"time"

	"github.com/sapira-ai/pharo-backend/pkg/config"
)

// sessionCookies writes and clears the session and active-organization cookies.
type sessionCookies struct {
	cookies    config.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
	secure     bool
}

func newSessionCookies(cfg *config.Config) sessionCookies {
	return sessionCookies{
		cookies:    cfg.Cookies,
		accessTTL:  cfg.JWT.AccessTokenTTL(),
		refreshTTL: cfg.JWT.RefreshTokenTTL(),
		secure:     cfg.Cookies.Secure && !cfg.App.IsDev(),
	}
}

func (s sessionCookies) setSession(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, s.cookie(s.cookies.AccessCookie(), accessToken, s.accessTTL, true))
	http.SetCookie(w, s.cookie(s.cookies.RefreshCookie(), refreshToken, s.refreshTTL, true))
}

// setActiveOrganization stores the active organization slug for the web app.
func (s sessionCookies) setActiveOrganization(w http.ResponseWriter, slug string) {
	if slug == "" {
		return
	}
	http.SetCookie(w, s.cookie(s.cookies.ActiveOrgCookie, slug, s.refreshTTL, false))
}

func (s sessionCookies) clearAll(w http.ResponseWriter) {
	for _, name := range []string{s.cookies.AccessCookie(), s.cookies.RefreshCookie(), s.cookies.ActiveOrgCookie} {
		c := s.cookie(name, "", 0, name != s.cookies.ActiveOrgCookie)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (s sessionCookies) cookie(name, value string, ttl time.Duration, httpOnly bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cookies.Domain,
		HttpOnly: httpOnly,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

func refreshTokenFrom(r *http.Request, cookies config.CookieConfig, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if c, err := r.Cookie(cookies.RefreshCookie()); err == nil {
		return c.Value
	}
	return ""
}
