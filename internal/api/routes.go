package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sykell/igprovision/internal/middleware"
	"github.com/sykell/igprovision/internal/provisioner"
	"github.com/sykell/igprovision/internal/service"
	"github.com/sykell/igprovision/internal/session"
)

// Deps are the collaborators the HTTP API drives.
type Deps struct {
	Store    *service.Store
	Pipeline *provisioner.Pipeline
	Agent    *provisioner.Agent
	Sessions *session.FileStore
	Auth     AuthConfig
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		state := "healthy"
		if sqlDB, err := deps.Store.DB().DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"timestamp": time.Now().UTC(),
			"service":   "igprovision",
		})
	})

	r.POST("/auth/login", LoginHandler(deps.Store, deps.Auth))

	authorized := r.Group("/")
	authorized.Use(middleware.JWTRequired(deps.Auth.JWTSecret))
	{
		authorized.POST("/provision", ProvisionHandler(deps.Pipeline, deps.Store))
		authorized.POST("/proxies/check", CheckProxiesHandler(deps.Pipeline))

		authorized.GET("/accounts", ListAccountsHandler(deps.Store))
		authorized.POST("/accounts", AddAccountHandler(deps.Pipeline, deps.Store))
		authorized.GET("/accounts/:id", GetAccountHandler(deps.Store))
		authorized.DELETE("/accounts/:id", DeleteAccountHandler(deps.Store, deps.Sessions))
		authorized.POST("/accounts/:id/login", RefreshAccountHandler(deps.Store, deps.Agent))

		authorized.GET("/folders", ListFoldersHandler(deps.Store))
		authorized.POST("/folders", CreateFolderHandler(deps.Store))
	}

	return r
}
