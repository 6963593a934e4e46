package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRequestIDRouter(cfg RequestIDConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDWithConfig(cfg))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	r.GET("/ctx", func(c *gin.Context) {
		attrs := logger.FromContext(c.Request.Context())
		c.String(http.StatusOK, findAttrValue(attrs, "request_id"))
	})
	return r
}

func findAttrValue(attrs []slog.Attr, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value.String()
		}
	}
	return ""
}

func TestRequestID_GeneratesUUID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	body := w.Body.String()
	if _, err := uuid.Parse(body); err != nil {
		t.Errorf("request id %q is not a UUID: %v", body, err)
	}
	if header := w.Header().Get(requestIDHeader); header != body {
		t.Errorf("response header %q = %q; want %q", requestIDHeader, header, body)
	}
}

func TestRequestID_UpstreamHeader(t *testing.T) {
	const generated = "generated-id"

	tests := []struct {
		name     string
		trust    bool
		upstream string
		want     string
	}{
		{"ignored by default", false, "upstream-id-123", generated},
		{"reused when trusted", true, "upstream-id-123", "upstream-id-123"},
		{"64 chars reused", true, strings.Repeat("a", 64), strings.Repeat("a", 64)},
		{"too long replaced", true, strings.Repeat("a", 65), generated},
		{"bad charset replaced", true, "bad_id", generated},
		{"empty replaced", true, "", generated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRequestIDRouter(RequestIDConfig{
				TrustUpstream: tt.trust,
				Generate:      func() string { return generated },
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.upstream != "" {
				req.Header.Set(requestIDHeader, tt.upstream)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Body.String(); got != tt.want {
				t.Errorf("request id = %q, want %q", got, tt.want)
			}
			if got := w.Header().Get(requestIDHeader); got != tt.want {
				t.Errorf("response header = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestID_StoredInGoContext(t *testing.T) {
	r := setupRequestIDRouter(RequestIDConfig{TrustUpstream: true})

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set(requestIDHeader, "ctx-test-456")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if body := w.Body.String(); body != "ctx-test-456" {
		t.Errorf("expected request ID in context %q, got %q", "ctx-test-456", body)
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	r := setupRequestIDRouter(RequestIDConfig{})

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		id := w.Body.String()
		if ids[id] {
			t.Fatalf("duplicate request ID generated: %q", id)
		}
		ids[id] = true
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := GetRequestID(c); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
}
