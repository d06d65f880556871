package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"seedbank/internal/docx"
	"seedbank/internal/drafts"
	"seedbank/internal/models"
)

type openSessionRequest struct {
	Kind     string `json:"kind" binding:"required"`
	RecordID string `json:"record_id"`
}

type vertexRequest struct {
	Index *int    `json:"index"`
	Lng   float64 `json:"lng"`
	Lat   float64 `json:"lat"`
}

func (v vertexRequest) point() models.Point {
	return models.Point{Lng: v.Lng, Lat: v.Lat}
}

func (s *Server) session(c *gin.Context) (*drafts.Session, bool) {
	session, err := s.Sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return session, true
}

func (s *Server) handleOpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var session *drafts.Session
	if req.RecordID == "" {
		session, err = s.Sessions.OpenNew(kind, actorOf(c))
	} else {
		session, err = s.Sessions.Open(kind, req.RecordID, actorOf(c))
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.View())
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.Sessions.List()})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.View())
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if err := s.Sessions.Close(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePatchSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var patch drafts.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	s.respondEdit(c, session, func() (models.Record, error) { return session.Apply(patch) })
}

// handleReplaceSession writes the request body as the session's next value.
func (s *Server) handleReplaceSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	s.respondEdit(c, session, func() (models.Record, error) { return session.Replace(req.record()) })
}

// handleSessionDocument reads field notes from an uploaded DOCX into the
// description of the session value as one edit.
func (s *Server) handleSessionDocument(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	raw, err := readUpload(c)
	if err != nil {
		abortUploadError(c, err)
		return
	}
	paragraphs, err := docx.ExtractText(raw)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_document"})
		return
	}
	if len(paragraphs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "empty_document"})
		return
	}
	description := strings.Join(paragraphs, "\n")
	s.respondEdit(c, session, func() (models.Record, error) {
		return session.Apply(drafts.Patch{Description: &description})
	})
}

func (s *Server) handleSetBoundary(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var boundary models.Boundary
	if err := c.ShouldBindJSON(&boundary); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	s.respondEdit(c, session, func() (models.Record, error) { return session.SetBoundary(boundary) })
}

func (s *Server) handleAddVertex(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req vertexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	s.respondEdit(c, session, func() (models.Record, error) { return session.AddVertex(index, req.point()) })
}

func (s *Server) handleMoveVertex(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	index, ok := vertexIndex(c)
	if !ok {
		return
	}
	var req vertexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidPayload(c, err)
		return
	}
	s.respondEdit(c, session, func() (models.Record, error) { return session.MoveVertex(index, req.point()) })
}

func (s *Server) handleRemoveVertex(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	index, ok := vertexIndex(c)
	if !ok {
		return
	}
	s.respondEdit(c, session, func() (models.Record, error) { return session.RemoveVertex(index) })
}

func vertexIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": drafts.ErrVertexOutOfRange.Error()})
		return 0, false
	}
	return index, true
}

// respondEdit runs one session edit and replies with the updated view.
func (s *Server) respondEdit(c *gin.Context, session *drafts.Session, edit func() (models.Record, error)) {
	if _, err := edit(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.View())
}

func (s *Server) handleSessionUndo(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	if _, err := session.Undo(); err != nil {
		s.historyConflict(c, session, "undo_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, session.View())
}

func (s *Server) handleSessionRedo(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	if _, err := session.Redo(); err != nil {
		s.historyConflict(c, session, "redo_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, session.View())
}

func (s *Server) historyConflict(c *gin.Context, session *drafts.Session, code string, err error) {
	if !errors.Is(err, models.ErrUndoUnavailable) && !errors.Is(err, models.ErrRedoUnavailable) {
		abortWithError(c, err)
		return
	}
	view := session.View()
	c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": code, "history": view.History, "current": view.Current})
}

func (s *Server) handleCommitSession(c *gin.Context) {
	record, err := s.Sessions.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record, "session": session.View()})
}
