package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newGuardedRouter(gw *Gateway) *gin.Engine {
	router := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }

	router.GET("/api/twin/profile", gw.APIKeyMiddleware(), ok)
	router.POST("/api/admin/init-db", gw.AdminTokenMiddleware(), ok)
	router.GET("/dashboard", gw.DashboardMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyDashboardUser))
	})
	return router
}

func TestAPIKeyMiddleware(t *testing.T) {
	router := newGuardedRouter(newTestGateway(t, testAuthConfig()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/twin/profile", nil)
	req.Header.Set(APIKeyHeader, "twin-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/twin/profile", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unauthorized"`)
}

func TestAdminTokenMiddleware(t *testing.T) {
	router := newGuardedRouter(newTestGateway(t, testAuthConfig()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/init-db?token=init-token", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/admin/init-db", nil)
	req.Header.Set(AdminTokenHeader, "init-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestDashboardMiddleware(t *testing.T) {
	t.Run("Basic auth issues a session", func(t *testing.T) {
		router := newGuardedRouter(newTestGateway(t, testAuthConfig()))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.SetBasicAuth("admin", "s3cret")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "admin", w.Body.String())

		cookie := sessionCookie(w.Result())
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.NotContains(t, cookie.Value, "s3cret")

		// The issued cookie alone is enough for the next request
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(cookie)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Basic auth with a valid session reuses it", func(t *testing.T) {
		mr, client := newMiniredisClient(t)
		cfg := testAuthConfig()
		cfg.Dashboard.SessionStore = SessionStoreRedis
		gw := NewGateway(cfg, NewRedisSessionStore(client, time.Hour), nil, nil)
		router := newGuardedRouter(gw)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.SetBasicAuth("admin", "s3cret")
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		cookie := sessionCookie(w.Result())
		require.NotNil(t, cookie)
		require.Len(t, mr.Keys(), 1)

		for i := 0; i < 3; i++ {
			w = httptest.NewRecorder()
			req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			req.SetBasicAuth("admin", "s3cret")
			req.AddCookie(cookie)
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Nil(t, sessionCookie(w.Result()))
		}
		assert.Len(t, mr.Keys(), 1)
	})

	t.Run("Missing credentials redirect to login", func(t *testing.T) {
		router := newGuardedRouter(newTestGateway(t, testAuthConfig()))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?next=%2Fdashboard", w.Header().Get("Location"))
	})

	t.Run("Expired session redirects", func(t *testing.T) {
		gw := newTestGateway(t, testAuthConfig())
		store := gw.Sessions().(*JWTSessionStore)
		store.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
		token, err := store.Issue(context.Background(), "admin")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
		newGuardedRouter(gw).ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		cookie := sessionCookie(w.Result())
		require.NotNil(t, cookie)
		assert.Less(t, cookie.MaxAge, 0)
	})
}

func TestLoginRedirect(t *testing.T) {
	assert.Equal(t, "/login", LoginRedirect(""))
	assert.Equal(t, "/login?next=%2Fdashboard%3Ftab%3Dsamples", LoginRedirect("/dashboard?tab=samples"))
}
