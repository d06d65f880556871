package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"seedbank/internal/db"
	"seedbank/internal/drafts"
	"seedbank/internal/metrics"
	"seedbank/internal/models"
)

// Server wires handlers to the inventory and the edit session manager.
type Server struct {
	Database  *db.Database
	Inventory *models.Inventory
	Sessions  *drafts.Manager
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// RegisterRoutes attaches handlers to the gin engine.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	if s.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/records/:kind", s.handleListRecords)
		v1.POST("/records/:kind", s.handleCreateRecord)
		v1.POST("/records/:kind/reorder", s.handleReorderRecords)
		v1.GET("/records/:kind/:id", s.handleGetRecord)
		v1.PUT("/records/:kind/:id", s.handleUpdateRecord)
		v1.DELETE("/records/:kind/:id", s.handleDeleteRecord)
		v1.GET("/records/:kind/:id/document", s.handleRecordDocument)

		v1.GET("/overview", s.handleOverview)
		v1.GET("/export", s.handleExportWorkbook)
		v1.POST("/import", s.handleImportWorkbook)

		v1.GET("/history", s.handleHistoryStatus)
		v1.POST("/history/undo", s.handleUndo)
		v1.POST("/history/redo", s.handleRedo)

		v1.POST("/sessions", s.handleOpenSession)
		v1.GET("/sessions", s.handleListSessions)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.PATCH("/sessions/:id", s.handlePatchSession)
		v1.PUT("/sessions/:id", s.handleReplaceSession)
		v1.POST("/sessions/:id/document", s.handleSessionDocument)
		v1.DELETE("/sessions/:id", s.handleCloseSession)
		v1.PUT("/sessions/:id/boundary", s.handleSetBoundary)
		v1.POST("/sessions/:id/boundary/vertices", s.handleAddVertex)
		v1.PUT("/sessions/:id/boundary/vertices/:index", s.handleMoveVertex)
		v1.DELETE("/sessions/:id/boundary/vertices/:index", s.handleRemoveVertex)
		v1.POST("/sessions/:id/undo", s.handleSessionUndo)
		v1.POST("/sessions/:id/redo", s.handleSessionRedo)
		v1.POST("/sessions/:id/commit", s.handleCommitSession)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	payload := gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if s.Database == nil {
		payload["database"] = gin.H{"status": "disabled"}
	} else if err := s.Database.Ping(c.Request.Context()); err != nil {
		payload["database"] = gin.H{"status": "unavailable", "error": err.Error()}
	} else {
		payload["database"] = gin.H{"status": "ok"}
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleOverview(c *gin.Context) {
	c.JSON(http.StatusOK, s.Inventory.Overview())
}

func (s *Server) handleHistoryStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Inventory.HistoryStatus())
}

func (s *Server) handleUndo(c *gin.Context) {
	status, err := s.Inventory.Undo()
	s.observeHistory("inventory", "undo", err)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "undo_unavailable", "history": status})
		return
	}
	s.logger().Info("inventory undo", "actor", actorOf(c), "undo_steps", status.UndoSteps)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "history": status})
}

func (s *Server) handleRedo(c *gin.Context) {
	status, err := s.Inventory.Redo()
	s.observeHistory("inventory", "redo", err)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "redo_unavailable", "history": status})
		return
	}
	s.logger().Info("inventory redo", "actor", actorOf(c), "redo_steps", status.RedoSteps)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "history": status})
}

func (s *Server) observeHistory(scope, op string, err error) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.HistoryOperation(scope, op, !errors.Is(err, models.ErrUndoUnavailable) && !errors.Is(err, models.ErrRedoUnavailable))
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
