package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 50 << 20

var errUploadTooLarge = errors.New("file_too_large")

type base64Upload struct {
	Data string `json:"data" binding:"required"`
}

// readUpload returns the uploaded workbook bytes. It accepts a multipart
// "file" field, a JSON body with base64 "data", or the raw request body.
func readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	contentType := c.ContentType()

	switch {
	case strings.HasPrefix(contentType, "multipart/"):
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		if fileHeader.Size > maxUploadBytes {
			return nil, errUploadTooLarge
		}
		src, err := fileHeader.Open()
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return readLimited(src)
	case contentType == gin.MIMEJSON:
		var req base64Upload
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(strings.TrimSpace(req.Data))
	default:
		return readLimited(c.Request.Body)
	}
}

func abortUploadError(c *gin.Context, err error) {
	_ = c.Error(err)
	code := "file_required"
	if errors.Is(err, errUploadTooLarge) {
		code = errUploadTooLarge.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errUploadTooLarge
		}
		return nil, err
	}
	if n > maxUploadBytes {
		return nil, errUploadTooLarge
	}
	return buf.Bytes(), nil
}
