package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/style-guide-service/pkg/auth"
	"github.com/developer-mesh/style-guide-service/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const dashboardSampleLimit = 50

func parsePages() (*template.Template, error) {
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return pages, nil
}

// sampleStats counts samples by kind
type sampleStats struct {
	Total int
	Text  int
	Audio int
	Media int
}

func countSamples(samples []*models.Sample) sampleStats {
	stats := sampleStats{Total: len(samples)}
	for _, sample := range samples {
		switch sample.Type {
		case models.SampleTypeText:
			stats.Text++
		case models.SampleTypeAudio:
			stats.Audio++
		case models.SampleTypeVideo, models.SampleTypeImage:
			stats.Media++
		}
	}
	return stats
}

func (s *Server) render(c *gin.Context, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("Failed to render page", map[string]any{"page": name, "error": err.Error()})
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// safeNext keeps redirects on this host
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}

func (s *Server) dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	profile, err := s.services.Profiles.Get(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	samples, err := s.services.Samples.List(ctx, dashboardSampleLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.render(c, http.StatusOK, "dashboard.html", gin.H{
		"User":    c.GetString(auth.ContextKeyDashboardUser),
		"Profile": profile,
		"Samples": samples,
		"Stats":   countSamples(samples),
	})
}

func (s *Server) loginPage(c *gin.Context) {
	s.render(c, http.StatusOK, "login.html", gin.H{
		"Next": safeNext(c.Query("next")),
	})
}

func (s *Server) login(c *gin.Context) {
	next := safeNext(c.PostForm("next"))

	token, err := s.gateway.Login(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		s.logger.Warn("Dashboard login failed", map[string]any{
			"ip":    c.ClientIP(),
			"error": err.Error(),
		})
		s.render(c, http.StatusUnauthorized, "login.html", gin.H{
			"Next":  next,
			"Error": "Invalid username or password",
		})
		return
	}

	s.gateway.SetSessionCookie(c, token)
	c.Redirect(http.StatusSeeOther, next)
}

func (s *Server) logout(c *gin.Context) {
	if cookie, err := c.Request.Cookie(auth.SessionCookie); err == nil {
		if err := s.gateway.Logout(c.Request.Context(), cookie.Value); err != nil {
			s.logger.Warn("Failed to revoke session", map[string]any{"error": err.Error()})
		}
	}
	s.gateway.ClearSessionCookie(c)
	c.Redirect(http.StatusSeeOther, auth.LoginPath)
}
