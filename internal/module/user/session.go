package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/userdir/internal/domain"
	"github.com/simp-lee/userdir/internal/pkg"
)

const (
	// SessionCookieName is the cookie that binds a browser to its directory store.
	SessionCookieName = "userdir_session"
	sessionContextKey = "directory_store"
	sessionIDKey      = "session_id"
	sessionRegKey     = "session_registry"
)

// DefaultSessionTTL applies when SessionOptions.TTL is zero.
const DefaultSessionTTL = 30 * time.Minute

// maxHeartbeat caps how often long-lived requests refresh their session.
const maxHeartbeat = 15 * time.Second

// ErrSessionLimit is returned by Acquire when MaxSessions live sessions exist.
var ErrSessionLimit = errors.New("session limit reached")

// SessionOptions configures a SessionRegistry.
type SessionOptions struct {
	// TTL is the idle lifetime of a session. Every request and every
	// event-stream heartbeat refreshes it.
	TTL time.Duration
	// MaxSessions caps the number of live sessions. Zero means no limit.
	MaxSessions int
	// Secure marks the session cookie HTTPS-only.
	Secure bool
	Logger *slog.Logger
}

// SessionRegistry gives every browser session its own DirectoryStore. Stores
// are created on first use, which triggers their initial load, and are closed
// when the session has been idle for longer than the TTL.
type SessionRegistry struct {
	mu       sync.Mutex
	items    *cache.Cache
	newStore func() *DirectoryStore
	// mount runs once for every new store, outside the registry lock.
	mount       func(*DirectoryStore)
	maxSessions int
	heartbeat   time.Duration
	secure      bool
	logger      *slog.Logger
}

// NewSessionRegistry creates a registry that builds stores with newStore.
func NewSessionRegistry(newStore func() *DirectoryStore, opts SessionOptions) *SessionRegistry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	r := &SessionRegistry{
		items:       cache.New(ttl, max(ttl/2, time.Second)),
		newStore:    newStore,
		maxSessions: max(opts.MaxSessions, 0),
		heartbeat:   max(min(ttl/3, maxHeartbeat), 10*time.Millisecond),
		secure:      opts.Secure,
		logger:      log.With(slog.String("component", "session_registry")),
	}
	r.mount = r.loadInBackground
	r.items.OnEvicted(func(id string, v any) {
		if st, ok := v.(*DirectoryStore); ok {
			st.Close()
		}
		r.logger.Debug("session closed", slog.String(sessionIDKey, id))
	})
	return r
}

func (r *SessionRegistry) loadInBackground(st *DirectoryStore) {
	go func() {
		// Failures are recorded in the store state.
		_ = st.Load(context.Background())
	}()
}

// Acquire returns the store of session id and refreshes its TTL. Unknown,
// expired or malformed ids get a fresh session; the returned id is then the
// new one and created is true. It returns ErrSessionLimit instead of creating
// a session past MaxSessions.
func (r *SessionRegistry) Acquire(id string) (sid string, st *DirectoryStore, created bool, err error) {
	r.mu.Lock()
	if _, err := uuid.Parse(id); err == nil {
		if v, ok := r.items.Get(id); ok {
			st = v.(*DirectoryStore)
			r.items.SetDefault(id, st)
			r.mu.Unlock()
			return id, st, false, nil
		}
	}

	if r.maxSessions > 0 && r.items.ItemCount() >= r.maxSessions {
		r.items.DeleteExpired()
		if r.items.ItemCount() >= r.maxSessions {
			r.mu.Unlock()
			return "", nil, false, ErrSessionLimit
		}
	}

	sid = uuid.NewString()
	st = r.newStore()
	r.items.SetDefault(sid, st)
	r.mu.Unlock()

	r.logger.Debug("session created", slog.String(sessionIDKey, sid))
	r.mount(st)
	return sid, st, true, nil
}

// Touch refreshes the idle TTL of session id. It reports false when the
// session no longer exists.
func (r *SessionRegistry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items.Get(id)
	if !ok {
		return false
	}
	r.items.SetDefault(id, v)
	return true
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	return r.items.ItemCount()
}

// Close ends every session and closes its store.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.items.Items() {
		r.items.Delete(id)
	}
}

// Middleware resolves the session cookie to a store, issuing a new cookie
// when a session is created, and adds session_id to the logging context.
func (r *SessionRegistry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookieName)
		sid, st, created, err := r.Acquire(id)
		if err != nil {
			r.logger.Warn("session rejected", slog.Int("sessions", r.Count()), slog.Any("error", err))
			pkg.Error(c, domain.NewAppError(domain.CodeUnavailable, "too many active sessions, try again later", err))
			c.Abort()
			return
		}
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookieName, sid, 0, "/", "", r.secure, true)
		}

		c.Set(sessionContextKey, st)
		c.Set(sessionIDKey, sid)
		c.Set(sessionRegKey, r)
		ctx := logger.WithContextAttrs(c.Request.Context(), slog.String(sessionIDKey, sid))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// StoreFrom returns the session store placed in c by Middleware.
func StoreFrom(c *gin.Context) (*DirectoryStore, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	st, ok := v.(*DirectoryStore)
	return st, ok
}

// sessionKeepAlive returns a func that refreshes the TTL of the session
// placed in c by Middleware, and how often it should be called. Without a
// registry in c the func always reports true.
func sessionKeepAlive(c *gin.Context) (touch func() bool, every time.Duration) {
	v, _ := c.Get(sessionRegKey)
	r, ok := v.(*SessionRegistry)
	if !ok {
		return func() bool { return true }, maxHeartbeat
	}
	sid := c.GetString(sessionIDKey)
	return func() bool { return r.Touch(sid) }, r.heartbeat
}
