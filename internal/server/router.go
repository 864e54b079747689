package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(api *API) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// Transport controls
	r.POST("/play/:id", api.Play)
	r.POST("/stop", api.Stop)
	r.POST("/pause", api.Pause)
	r.POST("/resume", api.Resume)
	r.POST("/next", api.Next)
	r.POST("/previous", api.Previous)
	r.POST("/volume/:level", api.Volume)
	r.GET("/status", api.Status)

	// Catalog
	mediaGroup := r.Group("/media")
	{
		mediaGroup.GET("", api.ListMedia)
		mediaGroup.POST("", api.UpsertMedia)
		mediaGroup.DELETE("/:id", api.RemoveMedia)
		mediaGroup.POST("/refresh/:kind", api.RefreshKind)
	}

	// Browse cursors for button-grid surfaces
	browseGroup := r.Group("/browse")
	{
		browseGroup.POST("", api.CreateCursor)
		browseGroup.GET("/:id", api.GetWindow)
		browseGroup.POST("/:id/advance", api.AdvanceCursor)
		browseGroup.POST("/:id/reset", api.ResetCursor)
		browseGroup.DELETE("/:id", api.RemoveCursor)
	}

	// Push feed of playback changes
	r.GET("/events", api.Events)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// corsMiddleware handles CORS for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
