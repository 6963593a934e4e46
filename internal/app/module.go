package app

import "github.com/gin-gonic/gin"

// Module is a self-registering feature. api is mounted at /api/v1 without
// CSRF protection; pages is the root group behind the CSRF middleware.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}
