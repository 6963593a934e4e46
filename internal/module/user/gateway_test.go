package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/simp-lee/userdir/internal/domain"
)

const testAvatarBase = "https://img.example.com/150?img="

// fakeTransport serves a canned JSON payload or error.
type fakeTransport struct {
	mu      sync.Mutex
	payload any
	status  int
	err     error
	paths   []string
}

func (f *fakeTransport) Get(_ context.Context, path string, out any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return f.status, f.err
	}
	raw, err := json.Marshal(f.payload)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return 0, err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, nil
}

func newTestGateway(ft *fakeTransport, logger *slog.Logger) domain.UserGateway {
	return NewUserGateway(GatewayConfig{AvatarBaseURL: testAvatarBase}, ft, logger)
}

func numberedUsers(n int) []domain.User {
	users := make([]domain.User, n)
	for i := range users {
		users[i] = domain.User{ID: i + 1, Name: "User " + strconv.Itoa(i+1), Avatar: "server-provided"}
	}
	return users
}

func TestUserGateway_FetchAll(t *testing.T) {
	ft := &fakeTransport{payload: sampleUsers()}
	gw := newTestGateway(ft, nil)

	res, err := gw.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", res.Status)
	}
	if res.Message != "users fetched successfully" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(res.Data) != 5 || res.Data[2].Name != "Clementine Bauch" {
		t.Fatalf("Data = %+v", res.Data)
	}
	if len(ft.paths) != 1 || ft.paths[0] != "/users" {
		t.Errorf("paths = %v, want [/users]", ft.paths)
	}
}

func TestUserGateway_FetchAll_AvatarCycles(t *testing.T) {
	ft := &fakeTransport{payload: numberedUsers(145)}
	gw := newTestGateway(ft, nil)

	res, err := gw.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	for i, u := range res.Data {
		want := testAvatarBase + strconv.Itoa(i%70+1)
		if u.Avatar != want {
			t.Fatalf("Data[%d].Avatar = %q, want %q", i, u.Avatar, want)
		}
	}

	checks := map[int]string{0: "1", 69: "70", 70: "1", 71: "2", 140: "1"}
	for i, suffix := range checks {
		if got := res.Data[i].Avatar; got != testAvatarBase+suffix {
			t.Errorf("Data[%d].Avatar = %q, want suffix %s", i, got, suffix)
		}
	}
}

func TestUserGateway_FetchAll_EmptyResult(t *testing.T) {
	gw := newTestGateway(&fakeTransport{payload: []domain.User{}}, nil)

	res, err := gw.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Errorf("Data = %#v, want empty non-nil slice", res.Data)
	}
}

func TestUserGateway_FetchAll_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	upstream := domain.NewGatewayError("", http.StatusServiceUnavailable, domain.GatewayCodeBadResponse,
		errors.New("request failed with status code 503"))
	gw := newTestGateway(&fakeTransport{err: upstream, status: http.StatusServiceUnavailable}, logger)

	res, err := gw.FetchAll(context.Background())
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if err != upstream {
		t.Errorf("err = %v, want the transport error unchanged", err)
	}
	if !strings.Contains(buf.String(), "fetch users failed") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestUserGateway_FetchAll_NormalizesForeignErrors(t *testing.T) {
	gw := newTestGateway(&fakeTransport{err: context.DeadlineExceeded}, nil)

	_, err := gw.FetchAll(context.Background())
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *domain.GatewayError, got %T", err)
	}
	if gwErr.Code != domain.GatewayCodeTimeout {
		t.Errorf("Code = %q, want %q", gwErr.Code, domain.GatewayCodeTimeout)
	}
	if gwErr.Message == "" {
		t.Error("Message should never be empty")
	}
}

func TestUserGateway_FetchByID(t *testing.T) {
	tests := []struct {
		id         int
		wantAvatar string
	}{
		{1, "2"},
		{69, "70"},
		{70, "1"},
		{140, "1"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.id), func(t *testing.T) {
			ft := &fakeTransport{payload: domain.User{ID: tt.id, Name: "Someone"}}
			gw := newTestGateway(ft, nil)

			res, err := gw.FetchByID(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("FetchByID() error: %v", err)
			}
			if ft.paths[0] != "/users/"+strconv.Itoa(tt.id) {
				t.Errorf("path = %q", ft.paths[0])
			}
			if res.Message != "user fetched successfully" {
				t.Errorf("Message = %q", res.Message)
			}
			if res.Data.Avatar != testAvatarBase+tt.wantAvatar {
				t.Errorf("Avatar = %q, want suffix %s", res.Data.Avatar, tt.wantAvatar)
			}
		})
	}
}

func TestUserGateway_FetchByID_NotFound(t *testing.T) {
	upstream := domain.NewGatewayError("", http.StatusNotFound, domain.GatewayCodeBadRequest,
		errors.New("request failed with status code 404"))
	gw := newTestGateway(&fakeTransport{err: upstream, status: http.StatusNotFound}, nil)

	_, err := gw.FetchByID(context.Background(), 999)
	if domain.HTTPStatusCode(err) != http.StatusNotFound {
		t.Errorf("HTTPStatusCode = %d, want 404", domain.HTTPStatusCode(err))
	}
}

func TestAvatarURL_NegativeIndex(t *testing.T) {
	g := &userGateway{avatarPrefix: testAvatarBase}
	if got := g.avatarURL(-1); got != testAvatarBase+"70" {
		t.Errorf("avatarURL(-1) = %q", got)
	}
}

func TestNewUserGateway_BuildsHTTPClientWhenTransportNil(t *testing.T) {
	gw := NewUserGateway(GatewayConfig{APIBaseURL: "http://127.0.0.1:1", AvatarBaseURL: testAvatarBase}, nil, nil)
	if gw.(*userGateway).t == nil {
		t.Fatal("expected a default transport")
	}
}
