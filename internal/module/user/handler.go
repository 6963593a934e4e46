package user

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/userdir/internal/domain"
	"github.com/simp-lee/userdir/internal/pkg"
)

const stateEvent = "state"

// DirectoryHandler serves the JSON and server-sent-event API of the session
// directory store, plus a passthrough to the user gateway.
type DirectoryHandler struct {
	gateway domain.UserGateway
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(gw domain.UserGateway) *DirectoryHandler {
	return &DirectoryHandler{gateway: gw}
}

// Snapshot handles GET /api/v1/directory.
func (h *DirectoryHandler) Snapshot(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}
	pkg.Success(c, st.Snapshot())
}

// Load handles POST /api/v1/directory/load. A failed load is reported in the
// returned state, not as an HTTP error.
func (h *DirectoryHandler) Load(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}
	_ = st.Load(context.WithoutCancel(c.Request.Context()))
	pkg.Success(c, st.Snapshot())
}

// Search handles PUT /api/v1/directory/search.
func (h *DirectoryHandler) Search(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}
	var req SearchRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	st.SetSearchTerm(req.Term)
	pkg.Success(c, st.Snapshot())
}

// Select handles POST /api/v1/directory/select.
func (h *DirectoryHandler) Select(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}
	var req SelectRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	u, found := st.FindUser(req.ID)
	if !found {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "user not loaded", nil))
		return
	}
	st.SelectUser(u)
	pkg.Success(c, st.Snapshot())
}

// Close handles POST /api/v1/directory/close.
func (h *DirectoryHandler) Close(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}
	st.CloseModal()
	pkg.Success(c, st.Snapshot())
}

// ClearError handles DELETE /api/v1/directory/error.
func (h *DirectoryHandler) ClearError(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}
	st.ClearError()
	pkg.Success(c, st.Snapshot())
}

// Events handles GET /api/v1/directory/events. It sends the current state and
// then one "state" event per change until the client disconnects. Slow
// clients only ever receive the newest state. A periodic comment line keeps
// the connection and the session alive; the stream ends once the session is
// gone so the client reconnects into a new one.
func (h *DirectoryHandler) Events(c *gin.Context) {
	st, ok := storeOrAbort(c)
	if !ok {
		return
	}

	updates := make(chan State, 1)
	unsubscribe := st.Subscribe(func(s State) { offerLatest(updates, s) })
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	current := st.Snapshot()
	last := current.Version
	c.SSEvent(stateEvent, current)
	c.Writer.Flush()

	touch, every := sessionKeepAlive(c)
	heartbeat := time.NewTicker(every)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if !touch() {
				return
			}
			if _, err := io.WriteString(c.Writer, ": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case s := <-updates:
			if s.Version <= last {
				continue
			}
			last = s.Version
			c.SSEvent(stateEvent, s)
			c.Writer.Flush()
		}
	}
}

// offerLatest puts s into the single-slot channel ch without blocking,
// replacing an older pending state.
func offerLatest(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case old := <-ch:
			if old.Version > s.Version {
				s = old
			}
		default:
		}
	}
}

// ListUsers handles GET /api/v1/users.
func (h *DirectoryHandler) ListUsers(c *gin.Context) {
	res, err := h.gateway.FetchAll(c.Request.Context())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetUser handles GET /api/v1/users/:id.
func (h *DirectoryHandler) GetUser(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	res, err := h.gateway.FetchByID(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// storeOrAbort fetches the session store or answers 500 when the session
// middleware is missing from the chain.
func storeOrAbort(c *gin.Context) (*DirectoryStore, bool) {
	st, ok := StoreFrom(c)
	if !ok {
		pkg.Error(c, domain.NewAppError(domain.CodeInternal, "session store unavailable", nil))
		c.Abort()
		return nil, false
	}
	return st, true
}

// parseID extracts and validates the "id" URL parameter.
func parseID(c *gin.Context) (int, error) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}
	return id, nil
}
