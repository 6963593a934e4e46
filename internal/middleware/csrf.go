package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "_csrf_token"
	csrfFormField  = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfContextKey = "CSRFToken"
)

// CSRF returns a gin middleware implementing the double-submit cookie pattern
// for page routes. Tokens have the form hex(nonce) + "." +
// base64url(HMAC-SHA256(nonce, secret)).
//
// Safe methods (GET, HEAD, OPTIONS) issue a token cookie when none with a
// valid signature is present and expose the token to templates as
// "CSRFToken". Unsafe methods must echo the cookie value in the
// X-CSRF-Token header (htmx sends it from hx-headers) or the _csrf_token form
// field; otherwise the request is rejected with 403.
//
// The JSON API is not covered; register this middleware on page groups only.
func CSRF(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "csrf secret is required",
				"data":    nil,
			})
		}
	}

	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		cookieToken, _ := c.Cookie(csrfCookieName)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if !validToken(cookieToken, secret) {
				token, err := generateToken(secret)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"code":    http.StatusInternalServerError,
						"message": "failed to generate CSRF token",
						"data":    nil,
					})
					return
				}
				setCSRFCookie(c, token, secure)
				cookieToken = token
			}
			c.Set(csrfContextKey, cookieToken)
			c.Next()
			return
		}

		requestToken := c.GetHeader(csrfHeaderName)
		if requestToken == "" {
			requestToken = c.PostForm(csrfFormField)
		}

		switch {
		case cookieToken == "" || requestToken == "":
			rejectCSRF(c, "CSRF token missing")
		case !validToken(cookieToken, secret) || !validToken(requestToken, secret):
			rejectCSRF(c, "CSRF token invalid")
		case subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) != 1:
			rejectCSRF(c, "CSRF token invalid")
		default:
			c.Set(csrfContextKey, cookieToken)
			c.Next()
		}
	}
}

// rejectCSRF answers 403. htmx requests get a toast asking for a reload,
// since a stale page is the usual cause.
func rejectCSRF(c *gin.Context, message string) {
	if c.GetHeader("HX-Request") == "true" {
		c.Header("HX-Reswap", "none")
		c.Header("HX-Trigger", `{"showToast":{"message":"Session expired, please reload the page","type":"error"}}`)
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":    http.StatusForbidden,
		"message": message,
		"data":    nil,
	})
}

// GetCSRFToken returns the token the CSRF middleware stored in gin.Context,
// or an empty string.
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}

func generateToken(secret string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	nonceHex := hex.EncodeToString(nonce)
	return nonceHex + "." + signNonce(nonceHex, secret), nil
}

func signNonce(nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validToken checks the token format and its HMAC signature.
func validToken(token, secret string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(signNonce(nonce, secret))) == 1
}

// setCSRFCookie sets the token cookie. It is readable by scripts so pages can
// echo it; Secure is set in release mode.
func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
