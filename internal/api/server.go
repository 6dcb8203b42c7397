package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/dbferry/dbferry/internal/api/handler"
	"github.com/dbferry/dbferry/internal/api/middleware"
	"github.com/dbferry/dbferry/internal/core/service"
	"github.com/dbferry/dbferry/pkg/config"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	backupService *service.BackupService,
	exportService *service.ExportService,
) *Server {
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandlerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	backupHandler := handler.NewBackupHandler(backupService)
	exportHandler := handler.NewExportHandler(exportService)

	// Backups
	backups := router.Group("/backups")
	{
		backups.POST("", backupHandler.CreateBackup)
		backups.GET("", backupHandler.ListBackups)
		backups.GET("/:id", backupHandler.GetBackup)
		backups.DELETE("/:id", backupHandler.DeleteBackup)
		backups.POST("/:id/cancel", backupHandler.CancelBackup)
		backups.POST("/:id/restore", backupHandler.Restore)
	}

	// Exports
	exports := router.Group("/exports")
	{
		exports.POST("", exportHandler.CreateExport)
		exports.GET("/stream", exportHandler.StreamExport)
		exports.GET("/:id", exportHandler.GetExport)
		exports.POST("/:id/cancel", exportHandler.CancelExport)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)

	s.srv = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	fmt.Printf("Starting HTTP server on %s\n", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
