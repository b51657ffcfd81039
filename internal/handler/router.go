package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inbox-rules-api/pkg/response"
)

// Routes collects the handlers and guards mounted by RegisterRoutes.
type Routes struct {
	Jobs    *JobHandler
	Runs    *RunHandler
	Logs    *LogHandler
	Gmail   *GmailAuthHandler
	Metrics *MetricsHandler

	// Auth guards user routes; Trigger guards the run endpoint.
	Auth    gin.HandlerFunc
	Trigger gin.HandlerFunc
}

// RegisterRoutes mounts the API under prefix and the health endpoints at the root.
// Unknown methods on known paths answer 405.
func RegisterRoutes(engine *gin.Engine, prefix string, routes Routes) {
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(response.MethodNotAllowed)

	if routes.Metrics != nil {
		engine.GET("/health", routes.Metrics.Health)
		engine.GET("/ready", routes.Metrics.Ready)
		engine.GET("/metrics", routes.Metrics.Prometheus)
		engine.GET("/metrics/summary", routes.Metrics.Summary)
	}

	api := engine.Group("/" + strings.Trim(prefix, "/"))

	if routes.Runs != nil {
		api.POST("/run/:userId", routes.Trigger, routes.Runs.Run)
	}

	secured := api.Group("")
	secured.Use(routes.Auth)

	if routes.Jobs != nil {
		jobs := secured.Group("/jobs")
		jobs.GET("", routes.Jobs.List)
		jobs.POST("", routes.Jobs.Create)
		jobs.PUT("", routes.Jobs.Update)
		jobs.DELETE("", routes.Jobs.Delete)
		jobs.GET("/:jobId", routes.Jobs.Get)
		jobs.PUT("/:jobId", routes.Jobs.Update)
		jobs.DELETE("/:jobId", routes.Jobs.Delete)
	}

	if routes.Logs != nil {
		secured.GET("/logs", routes.Logs.List)
		secured.GET("/logs/export", routes.Logs.Export)
	}

	if routes.Gmail != nil {
		secured.GET("/auth/gmail/url", routes.Gmail.AuthURL)
		secured.POST("/auth/gmail/token", routes.Gmail.Token)
	}
}
