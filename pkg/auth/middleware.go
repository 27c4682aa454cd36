package auth

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
)

// LoginPath is where unauthenticated dashboard requests are sent
const LoginPath = "/login"

// Context keys set by the middleware
const (
	ContextKeyDashboardUser = "dashboard_user"
)

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status": apperrors.ClassUnauthorized.String(),
		"error":  message,
	})
}

// APIKeyMiddleware guards the profile API
func (g *Gateway) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := g.CheckAPIKey(c.Request); err != nil {
			g.recordFailure("api_key", err)
			g.logger.Warn("API key rejected", map[string]any{
				"error": err.Error(),
				"ip":    c.ClientIP(),
				"path":  c.Request.URL.Path,
			})
			abortUnauthorized(c, "Unauthorized: invalid API key")
			return
		}
		c.Next()
	}
}

// AdminTokenMiddleware guards the privileged schema operations
func (g *Gateway) AdminTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := g.CheckAdminToken(c.Request); err != nil {
			g.recordFailure("admin_token", err)
			g.logger.Warn("Admin token rejected", map[string]any{
				"error": err.Error(),
				"ip":    c.ClientIP(),
				"path":  c.Request.URL.Path,
			})
			abortUnauthorized(c, "Unauthorized: invalid or missing admin token")
			return
		}
		c.Next()
	}
}

// DashboardMiddleware guards the dashboard. Basic auth refreshes the session
// cookie; anything else without a valid session is redirected to the login page.
func (g *Gateway) DashboardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.CheckDashboard(c.Request.Context(), c.Request)
		if err != nil {
			g.recordFailure("dashboard", err)
			g.ClearSessionCookie(c)
			c.Redirect(http.StatusFound, LoginRedirect(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}

		if identity.FromHeader && !identity.HasSession && g.sessions != nil {
			token, err := g.sessions.Issue(c.Request.Context(), identity.Username)
			if err != nil {
				g.logger.Error("Failed to issue dashboard session", map[string]any{"error": err.Error()})
			} else {
				g.SetSessionCookie(c, token)
			}
		}

		c.Set(ContextKeyDashboardUser, identity.Username)
		c.Next()
	}
}

// LoginRedirect builds the login URL that returns to next
func LoginRedirect(next string) string {
	if next == "" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// SetSessionCookie writes the session cookie
func (g *Gateway) SetSessionCookie(c *gin.Context, token string) {
	maxAge := int(DefaultSessionTTL.Seconds())
	if g.sessions != nil {
		maxAge = int(g.sessions.TTL().Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   g.cfg.Dashboard.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie
func (g *Gateway) ClearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.Dashboard.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
