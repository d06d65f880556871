package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"seedbank/internal/export"
	"seedbank/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportWorkbook(c *gin.Context) {
	data, err := export.Export(s.Inventory.Catalog())
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=seedbank.xlsx")
	c.Data(http.StatusOK, xlsxContentType, data)
}

// handleImportWorkbook replaces the kinds found in the workbook, or appends to
// them with mode=append. Either way the import is one history step.
func (s *Server) handleImportWorkbook(c *gin.Context) {
	mode := c.DefaultQuery("mode", "replace")
	if mode != "replace" && mode != "append" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_mode"})
		return
	}
	raw, err := readUpload(c)
	if err != nil {
		abortUploadError(c, err)
		return
	}
	catalog, err := export.Import(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, export.ErrNoRecordSheets) {
			abortWithError(c, err)
			return
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_workbook", "detail": err.Error()})
		return
	}
	var counts map[models.Kind]int
	if mode == "append" {
		counts, err = s.Inventory.AppendKinds(catalog, actorOf(c))
	} else {
		counts, err = s.Inventory.ReplaceKinds(catalog, actorOf(c))
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	s.logger().Info("workbook imported", "actor", actorOf(c), "mode", mode, "kinds", len(counts))
	c.JSON(http.StatusOK, gin.H{"status": "imported", "mode": mode, "counts": counts, "history": s.Inventory.HistoryStatus()})
}
