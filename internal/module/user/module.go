package user

import "github.com/gin-gonic/gin"

// DirectoryModule implements the app.Module interface for the user directory.
type DirectoryModule struct {
	handler     *DirectoryHandler
	pageHandler *DirectoryPageHandler
	sessions    *SessionRegistry
}

// NewModule creates a new DirectoryModule.
// Panics if any argument is nil.
func NewModule(h *DirectoryHandler, ph *DirectoryPageHandler, sessions *SessionRegistry) *DirectoryModule {
	if h == nil {
		panic("user.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("user.NewModule: pageHandler must not be nil")
	}
	if sessions == nil {
		panic("user.NewModule: sessions must not be nil")
	}
	return &DirectoryModule{handler: h, pageHandler: ph, sessions: sessions}
}

// RegisterRoutes registers directory API and page routes. Routes that touch
// the session store run behind the session middleware; the gateway
// passthrough does not need a session.
func (m *DirectoryModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	// API routes
	api.GET("/users", m.handler.ListUsers)
	api.GET("/users/:id", m.handler.GetUser)

	dir := api.Group("/directory", m.sessions.Middleware())
	dir.GET("", m.handler.Snapshot)
	dir.POST("/load", m.handler.Load)
	dir.PUT("/search", m.handler.Search)
	dir.POST("/select", m.handler.Select)
	dir.POST("/close", m.handler.Close)
	dir.DELETE("/error", m.handler.ClearError)
	dir.GET("/events", m.handler.Events)

	// Page routes
	p := pages.Group("/users", m.sessions.Middleware())
	p.GET("", m.pageHandler.ListPage)
	p.GET("/list", m.pageHandler.ListFragment)
	p.POST("/:id/select", m.pageHandler.SelectHTMX)
	p.POST("/modal/close", m.pageHandler.CloseModalHTMX)
	p.POST("/reload", m.pageHandler.ReloadHTMX)
	p.DELETE("/error", m.pageHandler.ClearErrorHTMX)
}
