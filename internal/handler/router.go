package handler

import (
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers and guards mounted by RegisterRoutes.
type Routes struct {
	APIPrefix string

	Auth      *AuthHandler
	Documents *DocumentHandler
	Shares    *ShareHandler
	Metrics   *MetricsHandler
	// Files is nil when blobs are served by an external object store.
	Files *FileHandler

	RequireAuth  gin.HandlerFunc
	RequireAdmin gin.HandlerFunc
	ShareLimit   gin.HandlerFunc
}

// RegisterRoutes mounts every endpoint on r.
func RegisterRoutes(r *gin.Engine, routes Routes) {
	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)

	api := r.Group(routes.APIPrefix)
	api.POST("/token", routes.Auth.Token)
	api.POST("/register", routes.Auth.Register)

	// anonymous share access
	api.GET("/documents/shared/:token/check", routes.Shares.Check)
	api.GET("/documents/shared/:token", chain(routes.ShareLimit, routes.Shares.Resolve)...)
	if routes.Files != nil {
		api.GET("/files/:token", routes.Files.Serve)
	}

	secured := api.Group("")
	secured.Use(routes.RequireAuth)
	secured.GET("/users/me", routes.Auth.Me)
	secured.GET("/metrics/summary", chain(routes.RequireAdmin, routes.Metrics.Summary)...)

	docs := secured.Group("/documents")
	docs.POST("/upload", routes.Documents.Upload)
	docs.GET("/my-documents", routes.Documents.List)
	docs.GET("/preview/:id", routes.Documents.Preview)
	docs.GET("/download/:id", routes.Documents.Download)
	docs.DELETE("/:id", routes.Documents.Delete)

	docs.GET("/shared", routes.Shares.ListMine)
	docs.GET("/export/shared", routes.Shares.Export)
	docs.GET("/:id/share", routes.Shares.Status)
	docs.POST("/:id/share", routes.Shares.Upsert)
	docs.PUT("/:id/share", routes.Shares.Upsert)
	docs.DELETE("/:id/share", routes.Shares.Revoke)
	docs.POST("/share/:id", routes.Shares.Upsert)
	docs.PUT("/share/:token", routes.Shares.UpdateByToken)
}

func chain(guard gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if guard == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{guard, h}
}
