package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/handler"
	"github.com/noah-isme/sma-library-api/internal/middleware"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/config"
	"github.com/noah-isme/sma-library-api/pkg/middleware/ratelimit"
)

type routeDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	validator middleware.TokenValidator
	auditRepo middleware.AuditWriter

	auth    *handler.AuthHandler
	catalog *handler.CatalogHandler
	loans   *handler.LoanHandler
	reviews *handler.ReviewHandler
	books   *handler.BookHandler
	reports *handler.ReportHandler
	audit   *handler.AuditHandler
	metrics *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	loginLimiter := ratelimit.New(deps.cfg.RateLimit.LoginPerSecond, deps.cfg.RateLimit.LoginBurst)
	requireAuth := middleware.JWT(deps.validator)

	auth := api.Group("/auth")
	auth.POST("/login", loginLimiter.Middleware(), deps.auth.BorrowerLogin)
	auth.POST("/admin/login", loginLimiter.Middleware(), deps.auth.AdminLogin)
	auth.GET("/me", requireAuth, deps.auth.Me)

	api.GET("/catalog", deps.catalog.List)
	api.GET("/catalog/sections", deps.catalog.Sections)
	api.GET("/catalog/stats", deps.catalog.Stats)
	api.GET("/books/:id", deps.catalog.BookDetail)

	borrower := api.Group("", requireAuth, middleware.RequireRoles(models.RoleBorrower))
	borrower.POST("/loans", deps.loans.Create)
	borrower.GET("/me/loans", deps.loans.MyLoans)
	borrower.POST("/loans/:id/reviews", deps.reviews.Submit)

	admin := api.Group("/admin", requireAuth, middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/loans", deps.loans.History)
	admin.GET("/loans/:id", deps.loans.Get)
	admin.POST("/loans/:id/return",
		middleware.Audit(deps.auditRepo, deps.logger, models.AuditActionLoanReturn, "loan"),
		deps.loans.Return)

	admin.GET("/books", deps.books.List)
	admin.POST("/books", deps.books.Create)
	admin.GET("/books/:id", deps.books.Get)
	admin.PUT("/books/:id", deps.books.Update)
	admin.DELETE("/books/:id", deps.books.Delete)

	admin.GET("/audit-logs", deps.audit.List)
	admin.GET("/metrics", deps.metrics.Snapshot)

	if deps.reports != nil {
		admin.POST("/reports",
			middleware.Audit(deps.auditRepo, deps.logger, models.AuditActionReport, "report"),
			deps.reports.Generate)
		admin.GET("/reports/:id", deps.reports.Status)
		api.GET("/export/:token", deps.reports.Download)
	}
}
