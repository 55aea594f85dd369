package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	oauthStateCookie   = "oauth_state"
)

// CookieConfig controls session cookie attributes. Cookies are always
// host-only, HTTP-only and SameSite=Lax.
type CookieConfig struct {
	Secure bool
}

func (cc CookieConfig) set(c *gin.Context, name, value, path string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	} else {
		cookie.MaxAge = int(time.Until(expires).Seconds())
	}
	http.SetCookie(c.Writer, cookie)
}

// SetSession writes both session cookies. With remember-me the access cookie
// outlives the access token so the browser keeps it for the refresh window.
func (cc CookieConfig) SetSession(c *gin.Context, p TokenPair) {
	cc.SetAccess(c, p.AccessToken, accessCookieExpiry(p))
	if p.RefreshToken != "" {
		cc.set(c, RefreshTokenCookie, p.RefreshToken, "/", p.RefreshExpiresAt)
	}
}

// SetAccess writes the access token cookie.
func (cc CookieConfig) SetAccess(c *gin.Context, token string, expires time.Time) {
	cc.set(c, AccessTokenCookie, token, "/", expires)
}

// Clear removes both session cookies.
func (cc CookieConfig) Clear(c *gin.Context) {
	cc.set(c, AccessTokenCookie, "", "/", time.Time{})
	cc.set(c, RefreshTokenCookie, "", "/", time.Time{})
}

func accessCookieExpiry(p TokenPair) time.Time {
	if p.RememberMe {
		return p.RefreshExpiresAt
	}
	return p.AccessExpiresAt
}
