package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/simp-lee/userdir/internal/domain"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: timeout})
}

func requireGatewayError(t *testing.T, err error) *domain.GatewayError {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *domain.GatewayError, got %T: %v", err, err)
	}
	return gwErr
}

func TestClient_Get_Success(t *testing.T) {
	var gotPath, gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"Leanne"},{"id":2,"name":"Ervin"}]`))
	}, time.Second)

	var out []item
	status, err := c.Get(context.Background(), "/users", &out)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if gotPath != "/users" {
		t.Errorf("path = %q, want /users", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if len(out) != 2 || out[1].Name != "Ervin" {
		t.Errorf("decoded = %+v", out)
	}
}

func TestClient_Get_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{
			name:     "server message preferred",
			status:   http.StatusNotFound,
			body:     `{"message":"user does not exist"}`,
			wantMsg:  "user does not exist",
			wantCode: domain.GatewayCodeBadRequest,
		},
		{
			name:     "empty object falls back to transport message",
			status:   http.StatusNotFound,
			body:     `{}`,
			wantMsg:  "request failed with status code 404",
			wantCode: domain.GatewayCodeBadRequest,
		},
		{
			name:     "non-json body",
			status:   http.StatusInternalServerError,
			body:     "upstream exploded",
			wantMsg:  "request failed with status code 500",
			wantCode: domain.GatewayCodeBadResponse,
		},
		{
			name:     "bad gateway",
			status:   http.StatusBadGateway,
			body:     `{"message":"try later"}`,
			wantMsg:  "try later",
			wantCode: domain.GatewayCodeBadResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, time.Second)

			var out item
			status, err := c.Get(context.Background(), "/users/1", &out)
			gwErr := requireGatewayError(t, err)

			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if gwErr.Status != tt.status {
				t.Errorf("GatewayError.Status = %d, want %d", gwErr.Status, tt.status)
			}
			if gwErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", gwErr.Message, tt.wantMsg)
			}
			if gwErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", gwErr.Code, tt.wantCode)
			}
		})
	}
}

func TestClient_Get_DecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "not-a-number"`))
	}, time.Second)

	var out item
	status, err := c.Get(context.Background(), "/users/1", &out)
	gwErr := requireGatewayError(t, err)

	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if gwErr.Code != domain.GatewayCodeDecode {
		t.Errorf("Code = %q, want %q", gwErr.Code, domain.GatewayCodeDecode)
	}
	if !strings.HasPrefix(gwErr.Message, "decode response") {
		t.Errorf("Message = %q, want decode prefix", gwErr.Message)
	}
}

func TestClient_Get_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	var out item
	status, err := c.Get(context.Background(), "/users", &out)
	gwErr := requireGatewayError(t, err)

	if status != 0 || gwErr.Status != 0 {
		t.Errorf("status = %d/%d, want 0", status, gwErr.Status)
	}
	if gwErr.Code != domain.GatewayCodeTimeout {
		t.Errorf("Code = %q, want %q", gwErr.Code, domain.GatewayCodeTimeout)
	}
	if gwErr.Message == "" {
		t.Error("Message should never be empty")
	}
}

func TestClient_Get_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: baseURL, Timeout: time.Second})
	var out item
	_, err := c.Get(context.Background(), "/users", &out)
	gwErr := requireGatewayError(t, err)

	if gwErr.Code != domain.GatewayCodeNetwork {
		t.Errorf("Code = %q, want %q", gwErr.Code, domain.GatewayCodeNetwork)
	}
	if gwErr.Unwrap() == nil {
		t.Error("network error should wrap the underlying cause")
	}
}

func TestRestyLogger_WritesThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	l := restyLogger{log: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Errorf("dial failed: %s", "refused")
	l.Warnf("attempt %d", 2)
	l.Debugf("request %s", "GET /users")

	out := buf.String()
	for _, want := range []string{"level=ERROR", "dial failed: refused", "level=WARN", "attempt 2", "level=DEBUG", "request GET /users"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
