package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"seedbank/internal/docx"
	"seedbank/internal/models"
)

type recordRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Attributes  map[string]string   `json:"attributes"`
	Tags        []string            `json:"tags"`
	Quantity    *float64            `json:"quantity"`
	Boundary    *models.Boundary    `json:"boundary"`
	Links       map[string][]string `json:"links"`
}

func (req recordRequest) record() models.Record {
	return models.Record{
		Name:        req.Name,
		Description: req.Description,
		Attributes:  req.Attributes,
		Tags:        req.Tags,
		Quantity:    req.Quantity,
		Boundary:    req.Boundary,
		Links:       convertLinks(req.Links),
	}
}

// convertLinks drops entries whose key is not a record kind.
func convertLinks(input map[string][]string) map[models.Kind][]string {
	if input == nil {
		return nil
	}
	out := make(map[models.Kind][]string, len(input))
	for key, values := range input {
		if kind, err := models.ParseKind(key); err == nil {
			out[kind] = append([]string{}, values...)
		}
	}
	return out
}

func kindParam(c *gin.Context) (models.Kind, bool) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		abortWithError(c, err)
		return "", false
	}
	return kind, true
}

func (s *Server) handleListRecords(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	query, err := parseRecordQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.empty() {
		items, total, err := s.Inventory.ListPaged(kind, page, pageSize)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
		return
	}

	all, err := s.Inventory.List(kind)
	if err != nil {
		abortWithError(c, err)
		return
	}
	matched := query.apply(all)
	c.JSON(http.StatusOK, gin.H{"items": paginate(matched, page, pageSize), "total": len(matched)})
}

func paginate(records []models.Record, page, pageSize int) []models.Record {
	if pageSize <= 0 {
		return records
	}
	start := max((page-1)*pageSize, 0)
	if start >= len(records) {
		return []models.Record{}
	}
	return records[start:min(start+pageSize, len(records))]
}

func (s *Server) handleGetRecord(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	record, err := s.Inventory.Get(kind, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleCreateRecord(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	created, err := s.Inventory.Create(kind, req.record(), actorOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateRecord(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	updated, err := s.Inventory.Update(kind, c.Param("id"), req.record(), actorOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	if err := s.Inventory.Delete(kind, c.Param("id"), actorOf(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (s *Server) handleReorderRecords(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	items, err := s.Inventory.Reorder(kind, req.IDs, actorOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleRecordDocument(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	record, err := s.Inventory.Get(kind, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	data, err := docx.Encode(docx.RecordSummary(record))
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "document_failed"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.ID+".docx"))
	c.Data(http.StatusOK, docx.ContentType, data)
}
