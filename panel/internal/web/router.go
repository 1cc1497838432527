package web

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if gin.Mode() != gin.TestMode {
		router.Use(gin.Logger())
	}

	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	// Health check
	router.GET("/health", handler.HealthCheck)

	router.GET("/", handler.Index)
	router.GET("/state", handler.GetState)
	router.GET("/snapshots", handler.GetSnapshots)
	router.GET("/snapshots/latest", handler.GetLatestSnapshot)

	// Panel buttons
	ui := router.Group("/ui")
	{
		ui.POST("/refresh", handler.Refresh)
		ui.POST("/action", handler.Action)
		ui.POST("/scanall", handler.ScanAll)
		ui.POST("/repairall", handler.RepairAll)
		ui.POST("/rotate", handler.Rotate)
		ui.POST("/syncrepos", handler.SyncRepos)
	}

	return router
}
