package main

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/models"
	"locallibrary/pkg/session"
)

const (
	sessionKey = "session"
	userKey    = "user"
	loginPath  = "/accounts/login/"
)

// sessionMiddleware attaches the caller's session and, when the session is
// bound to an account, the user with its permissions.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, _ := c.Cookie(session.CookieName)

		s, err := sessions.Load(ctx, token)
		if err != nil {
			logger.Logger.WithError(err).Warn("Session store unavailable, continuing with an anonymous session")
		}
		c.Set(sessionKey, s)

		if s.IsAuthenticated() {
			user, err := users.User(ctx, s.UserID())
			switch {
			case err == nil:
				c.Set(userKey, user)
			case errors.Is(err, accounts.ErrUserNotFound):
				s.Logout()
			default:
				logger.Logger.WithError(err).WithField("userId", s.UserID()).Error("Failed to load session user")
			}
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	s, _ := sessions.Load(c.Request.Context(), "")
	c.Set(sessionKey, s)
	return s
}

// currentUser returns nil for anonymous callers.
func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// commitSession stores a changed session and refreshes the cookie. It must
// run before the response body is written.
func commitSession(c *gin.Context) {
	token, err := sessions.Save(c.Request.Context(), currentSession(c))
	if err != nil {
		logger.Logger.WithError(err).Warn("Failed to save session")
		return
	}
	if token == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, token, int(sessions.TTL().Seconds()), "/", "", false, true)
}

// requireUser redirects anonymous callers to the login page and reports
// whether the handler may go on.
func requireUser(c *gin.Context) (*models.User, bool) {
	user := currentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, loginURL(c.Request.URL))
		c.Abort()
		return nil, false
	}
	return user, true
}

// requirePermission is requireUser plus a capability check; callers
// without the capability get 403.
func requirePermission(c *gin.Context, capability string) (*models.User, bool) {
	user, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	if !accounts.Can(user, capability) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action"})
		return nil, false
	}
	return user, true
}

// loginURL builds /accounts/login/?next=<path and query of u>. Slashes
// stay readable; every other reserved character is percent-encoded.
func loginURL(u *url.URL) string {
	next := url.QueryEscape(u.RequestURI())
	next = strings.ReplaceAll(next, "%2F", "/")
	next = strings.ReplaceAll(next, "+", "%20")
	return loginPath + "?next=" + next
}

// safeNext accepts only local absolute paths as a post-login target.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
