package security

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	assert.Equal(t, 200, config.MaxParamLength)
	assert.Contains(t, config.TrustedProxies, "127.0.0.1")
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
}

func TestValidateInput(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	tests := []struct {
		name        string
		input       string
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid input",
			input:       "Technology",
			expectError: false,
		},
		{
			name:        "valid input with spaces",
			input:       "Financial Services",
			expectError: false,
		},
		{
			name:        "input too long",
			input:       strings.Repeat("a", 201),
			expectError: true,
			errorMsg:    "input exceeds maximum length",
		},
		{
			name:        "null bytes",
			input:       "test\x00input",
			expectError: true,
			errorMsg:    "input contains invalid characters",
		},
		{
			name:        "invalid UTF-8",
			input:       "test\xff\xfeinput",
			expectError: true,
			errorMsg:    "input contains invalid UTF-8 encoding",
		},
		{
			name:        "XSS attempt",
			input:       "<script>alert('xss')</script>",
			expectError: true,
			errorMsg:    "input contains suspicious patterns",
		},
		{
			name:        "SQL injection attempt",
			input:       "'; DROP TABLE leads; --",
			expectError: true,
			errorMsg:    "input contains suspicious patterns",
		},
		{
			name:        "SQL comment",
			input:       "high /* hidden */",
			expectError: true,
			errorMsg:    "input contains suspicious patterns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sm.ValidateInput(tt.input)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text unchanged",
			input:    "Acme Corp",
			expected: "Acme Corp",
		},
		{
			name:     "trims whitespace",
			input:    "  Acme Corp  ",
			expected: "Acme Corp",
		},
		{
			name:     "removes script tags and content",
			input:    "hello<script>alert(1)</script>world",
			expected: "helloworld",
		},
		{
			name:     "strips html tags keeps content",
			input:    "<b>High</b> priority",
			expected: "High priority",
		},
		{
			name:     "collapses whitespace",
			input:    "High    priority   lead",
			expected: "High priority lead",
		},
		{
			name:     "decodes entities",
			input:    "Smith &amp; Sons",
			expected: "Smith & Sons",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sm.SanitizeInput(tt.input))
		})
	}
}

func newSecurityRouter(sm *SecurityMiddleware, middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware...)
	router.GET("/api/leads/scores", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/api/analysis/run", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestValidateQueryParams(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := newSecurityRouter(sm, sm.ValidateQueryParams)

	t.Run("clean query passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/leads/scores?limit=10&industry=Technology", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no query passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/leads/scores", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("script in query rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		q := url.Values{"industry": {"<script>alert(1)</script>"}}
		req := httptest.NewRequest("GET", "/api/leads/scores?"+q.Encode(), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid query parameter")
	})

	t.Run("sql injection in query rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		q := url.Values{"limit": {"10; DROP TABLE leads; --"}}
		req := httptest.NewRequest("GET", "/api/leads/scores?"+q.Encode(), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized value rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		q := url.Values{"industry": {strings.Repeat("a", 201)}}
		req := httptest.NewRequest("GET", "/api/leads/scores?"+q.Encode(), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestValidateContentType(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := newSecurityRouter(sm, sm.ValidateContentType)

	tests := []struct {
		name        string
		contentType string
		wantCode    int
	}{
		{"json allowed", "application/json", http.StatusOK},
		{"json with charset allowed", "application/json; charset=utf-8", http.StatusOK},
		{"form allowed", "application/x-www-form-urlencoded", http.StatusOK},
		{"empty allowed", "", http.StatusOK},
		{"xml rejected", "application/xml", http.StatusUnsupportedMediaType},
		{"plain text rejected", "text/plain", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/analysis/run", nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	config := DefaultSecurityConfig()
	config.RequestTimeout = 5 * time.Second
	sm := NewSecurityMiddleware(config)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sm.RequestTimeout)
	router.GET("/api/leads/scores", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/leads/scores", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-Timeout"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
}

func TestSecurityMiddlewareStack(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	router := newSecurityRouter(sm,
		SecurityHeadersMiddleware(),
		sm.ValidateQueryParams,
		sm.ValidateContentType,
		sm.RequestTimeout,
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/leads/scores?limit=25", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Timeout"))
}
