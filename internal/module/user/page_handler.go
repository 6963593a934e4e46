package user

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/userdir/internal/middleware"
)

// Template names rendered by DirectoryPageHandler.
const (
	tmplListPage = "user/list.html"
	tmplList     = "user/list_fragment.html"
	tmplModal    = "user/modal_fragment.html"
	tmplError500 = "errors/500.html"
)

// DirectoryPageHandler renders the directory page and its htmx fragments
// from the session store.
type DirectoryPageHandler struct{}

// NewDirectoryPageHandler creates a new DirectoryPageHandler.
func NewDirectoryPageHandler() *DirectoryPageHandler {
	return &DirectoryPageHandler{}
}

// ListPage renders the full directory page.
// GET /users
func (h *DirectoryPageHandler) ListPage(c *gin.Context) {
	st, ok := StoreFrom(c)
	if !ok {
		c.HTML(http.StatusInternalServerError, tmplError500, gin.H{})
		return
	}
	c.HTML(http.StatusOK, tmplListPage, pageData(c, st.Snapshot()))
}

// ListFragment renders the user grid. The search term is only changed when
// the q parameter is present, so polling while loading keeps it.
// GET /users/list
func (h *DirectoryPageHandler) ListFragment(c *gin.Context) {
	st, ok := StoreFrom(c)
	if !ok {
		c.HTML(http.StatusInternalServerError, tmplError500, gin.H{})
		return
	}
	if _, present := c.GetQuery("q"); present {
		var req SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			slog.DebugContext(c.Request.Context(), "search: bind error", "error", err)
			c.Header("HX-Reswap", "none")
			setShowToastHeader(c, "Search term is too long", "error")
			c.Status(http.StatusOK)
			return
		}
		st.SetSearchTerm(req.Term)
	}
	c.HTML(http.StatusOK, tmplList, pageData(c, st.Snapshot()))
}

// SelectHTMX opens the detail modal.
// POST /users/:id/select
func (h *DirectoryPageHandler) SelectHTMX(c *gin.Context) {
	st, ok := StoreFrom(c)
	if !ok {
		c.HTML(http.StatusInternalServerError, tmplError500, gin.H{})
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Header("HX-Reswap", "none")
		setShowToastHeader(c, "Invalid user id", "error")
		c.Status(http.StatusOK)
		return
	}
	u, found := st.FindUser(id)
	if !found {
		c.Header("HX-Reswap", "none")
		setShowToastHeader(c, "User not found, try reloading", "error")
		c.Status(http.StatusOK)
		return
	}

	st.SelectUser(u)
	c.HTML(http.StatusOK, tmplModal, pageData(c, st.Snapshot()))
}

// CloseModalHTMX closes the detail modal.
// POST /users/modal/close
func (h *DirectoryPageHandler) CloseModalHTMX(c *gin.Context) {
	st, ok := StoreFrom(c)
	if !ok {
		c.HTML(http.StatusInternalServerError, tmplError500, gin.H{})
		return
	}
	st.CloseModal()
	c.HTML(http.StatusOK, tmplModal, pageData(c, st.Snapshot()))
}

// ReloadHTMX reloads the directory and renders the refreshed grid.
// POST /users/reload
func (h *DirectoryPageHandler) ReloadHTMX(c *gin.Context) {
	st, ok := StoreFrom(c)
	if !ok {
		c.HTML(http.StatusInternalServerError, tmplError500, gin.H{})
		return
	}
	if err := st.Load(context.WithoutCancel(c.Request.Context())); err == nil {
		setShowToastHeader(c, "Directory reloaded", "success")
	}
	c.HTML(http.StatusOK, tmplList, pageData(c, st.Snapshot()))
}

// ClearErrorHTMX dismisses the error banner.
// DELETE /users/error
func (h *DirectoryPageHandler) ClearErrorHTMX(c *gin.Context) {
	st, ok := StoreFrom(c)
	if !ok {
		c.HTML(http.StatusInternalServerError, tmplError500, gin.H{})
		return
	}
	st.ClearError()
	c.HTML(http.StatusOK, tmplList, pageData(c, st.Snapshot()))
}

func pageData(c *gin.Context, s State) gin.H {
	return gin.H{
		"State":     s,
		"CSRFToken": middleware.GetCSRFToken(c),
	}
}

// setShowToastHeader sets the HX-Trigger response header with a showToast event.
func setShowToastHeader(c *gin.Context, message, toastType string) {
	trigger, _ := json.Marshal(map[string]any{
		"showToast": map[string]string{
			"message": message,
			"type":    toastType,
		},
	})
	c.Header("HX-Trigger", string(trigger))
}
