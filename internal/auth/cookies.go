package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "ml_access"
	RefreshCookieName = "ml_refresh"
)

type CookieConfig struct {
	Domain string
	Secure bool
}

func SetAuthCookies(w http.ResponseWriter, cfg CookieConfig, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, authCookie(cfg, AccessCookieName, accessToken, int(accessTTL.Seconds())))
	http.SetCookie(w, authCookie(cfg, RefreshCookieName, refreshToken, int(refreshTTL.Seconds())))
}

func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, authCookie(cfg, AccessCookieName, "", -1))
	http.SetCookie(w, authCookie(cfg, RefreshCookieName, "", -1))
}

func authCookie(cfg CookieConfig, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}
