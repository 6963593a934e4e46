package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/userdir/internal/config"
	"github.com/simp-lee/userdir/internal/middleware"
	"github.com/simp-lee/userdir/internal/module/user"
	"github.com/simp-lee/userdir/internal/transport"
	"github.com/simp-lee/userdir/web"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine   *gin.Engine
	sessions *user.SessionRegistry
	logger   *logger.Logger
	cfg      *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// WriteTimeout stays zero so directory event streams are not cut off.
var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the upstream transport and gateway, the per-session
// directory stores, handlers, middleware, template rendering and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 exposes template hot reload")
	}

	// 2. Manual dependency injection: transport → gateway → stores → handlers.
	client := transport.NewClient(transport.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.TimeoutDuration(),
		Logger:  log.Logger,
	})
	gateway := user.NewUserGateway(user.GatewayConfig{
		APIBaseURL:    cfg.API.BaseURL,
		AvatarBaseURL: cfg.API.AvatarBaseURL,
		Timeout:       cfg.API.TimeoutDuration(),
	}, client, log.Logger)

	storeOpts := user.StoreOptions{
		LoadDelay:  cfg.Directory.LoadDelayDuration(),
		CloseDelay: cfg.Directory.CloseDelayDuration(),
		Logger:     log.Logger,
	}
	sessions := user.NewSessionRegistry(func() *user.DirectoryStore {
		return user.NewDirectoryStore(gateway, storeOpts)
	}, user.SessionOptions{
		TTL:         cfg.Directory.SessionTTLDuration(),
		MaxSessions: cfg.Directory.MaxSessions,
		Secure:      cfg.Server.Mode == gin.ReleaseMode,
		Logger:      log.Logger,
	})
	defer func() {
		if !success {
			sessions.Close()
		}
	}()

	module := user.NewModule(
		user.NewDirectoryHandler(gateway),
		user.NewDirectoryPageHandler(),
		sessions,
	)

	// 3. Create Gin engine with custom middleware (not gin.Default()).
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.LoggerWithConfig(log.Logger, middleware.AccessLogConfig{
			SkipPaths: []string{"/health", "/static/"},
		}),
	)

	// 4. Determine filesystem mode and set up template renderer.
	var fsys fs.FS
	if cfg.Server.Mode == gin.DebugMode {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}

	renderer, err := NewTemplateRenderer(fsys, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	// 5. Resolve CSRF secret.
	csrfSecret, generated, err := resolveCSRFSecret(cfg.Server.CSRFSecret, cfg.Server.Mode)
	if err != nil {
		return nil, err
	}
	if generated {
		log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	}

	// 6. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:     []Module{module},
		Sessions:    sessions,
		Mode:        cfg.Server.Mode,
		CSRFSecret:  csrfSecret,
		CORSOrigins: cfg.Server.CORS.AllowOrigins,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:   engine,
		sessions: sessions,
		logger:   log,
		cfg:      cfg,
	}, nil
}

// Handler returns the HTTP handler of the app.
func (a *App) Handler() http.Handler {
	return a.engine
}

// resolveCSRFSecret returns the configured secret, or a random one outside
// release mode when none is configured. Release mode requires a strong secret.
func resolveCSRFSecret(secret, mode string) (resolved string, generated bool, err error) {
	if !isPlaceholderCSRFSecret(secret) {
		secret = strings.TrimSpace(secret)
		if mode == gin.ReleaseMode {
			if err := validateReleaseCSRFSecret(secret); err != nil {
				return "", false, err
			}
		}
		return secret, false, nil
	}
	if mode == gin.ReleaseMode {
		return "", false, errors.New("csrf_secret must be a non-placeholder value in release mode")
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", false, fmt.Errorf("generate csrf secret: %w", err)
	}
	return hex.EncodeToString(b), true, nil
}

func validateReleaseCSRFSecret(secret string) error {
	if len(secret) < 32 {
		return errors.New("csrf_secret must be at least 32 characters in release mode")
	}
	var lower, upper, digit, other bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return errors.New("csrf_secret must include at least 3 character classes (lower, upper, digit, symbol) in release mode")
	}
	return nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It performs graceful shutdown with a 5-second timeout, then closes every
// directory session.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.sessions != nil {
		n := a.sessions.Count()
		a.sessions.Close()
		log.Info("directory sessions closed", slog.Int("count", n))
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
