package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/docstore-service/common/errors"
	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/common/middleware"
	"github.com/yashrajoria/docstore-service/controllers"
	"github.com/yashrajoria/docstore-service/models"
	awspkg "github.com/yashrajoria/docstore-service/pkg/aws"
)

// Options carries the cross-cutting settings of the HTTP surface.
type Options struct {
	ServiceName    string
	AuthUser       string
	AuthSecret     string
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Metrics        *awspkg.MetricsClient
}

// NewRouter builds the engine: shared middleware, the unauthenticated health
// check, and the per-dbType resource routes behind basic auth.
func NewRouter(resolver controllers.Resolver, backends controllers.BackendLister, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(logger.Log))
	r.Use(middleware.SecurityHeaders())
	r.Use(corsMiddleware(opts.AllowedOrigins))
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Middleware())
	}
	r.Use(middleware.MetricsMiddleware(opts.Metrics, opts.ServiceName))
	r.Use(apperrors.ErrorMiddleware())

	r.GET("/healthz", controllers.NewHealthController(backends).Health)

	api := r.Group("/:dbType")
	api.Use(middleware.BasicAuth(opts.AuthUser, opts.AuthSecret))
	RegisterCartRoutes(api, resolver)
	RegisterDocumentRoutes(api, resolver, models.KindProduct)
	RegisterDocumentRoutes(api, resolver, models.KindUser)

	return r
}

func RegisterCartRoutes(api *gin.RouterGroup, resolver controllers.Resolver) {
	cc := controllers.NewCartController(resolver)
	api.POST("/cart", cc.Create)
	api.GET("/cart/:cartID", cc.Get)
	api.PATCH("/cart/:cartID", cc.UpdateItem)
	api.DELETE("/cart/:cartID", cc.Delete)
}

// RegisterDocumentRoutes mounts /<kind> and /<kind>/:<idField> for a
// free-form resource kind.
func RegisterDocumentRoutes(api *gin.RouterGroup, resolver controllers.Resolver, kind models.Kind) {
	dc := controllers.NewDocumentController(resolver, kind)
	item := "/" + kind.Name + "/:" + kind.IDField
	api.POST("/"+kind.Name, dc.Create)
	api.GET(item, dc.Get)
	api.PATCH(item, dc.Update)
	api.DELETE(item, dc.Delete)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", logger.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", logger.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
