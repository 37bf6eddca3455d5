// Package uploads accepts manuscript files for submissions.
package uploads

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/pkg/response"
	"github.com/seminar-hub/backend/pkg/storage"
)

// PaperStore is the manuscript storage used by Handler.
type PaperStore interface {
	PresignPaperUpload(ctx context.Context, key, contentType string) (string, error)
	UploadPaper(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignExpire() time.Duration
}

// PresignRequest is the JSON body for POST /uploads/papers.
type PresignRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// Handler handles manuscript uploads.
type Handler struct {
	store  PaperStore
	logger *zap.Logger
}

// NewHandler creates an uploads handler. A nil store answers 503.
func NewHandler(store PaperStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Paper handles POST /uploads/papers. A multipart body (form field "file") is streamed to
// storage; a JSON body returns a presigned PUT URL for the client to upload to.
func (h *Handler) Paper(c *gin.Context) {
	if h.store == nil {
		response.ServiceUnavailable(c, "file storage is not configured")
		return
	}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.upload(c)
		return
	}
	h.presign(c)
}

func checkFile(c *gin.Context, filename string, size int64) (string, bool) {
	if size > storage.MaxPaperFileSize {
		response.BadRequest(c, "file size exceeds 20MB limit")
		return "", false
	}
	ct, ok := storage.PaperContentType(filename)
	if !ok {
		response.BadRequest(c, "invalid file type: only pdf, doc and docx are accepted")
		return "", false
	}
	return ct, true
}

func (h *Handler) presign(c *gin.Context) {
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	contentType, ok := checkFile(c, req.Filename, req.FileSize)
	if !ok {
		return
	}
	key := storage.PaperKey(req.Filename)
	url, err := h.store.PresignPaperUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign paper upload failed", zap.Error(err), zap.String("key", key))
		response.ServiceUnavailable(c, "file storage unavailable")
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"paper_key":    key,
		"content_type": contentType,
		"expires_in":   int(h.store.PresignExpire().Seconds()),
	})
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxPaperFileSize+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	contentType, ok := checkFile(c, file.Filename, file.Size)
	if !ok {
		return
	}
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	key := storage.PaperKey(file.Filename)
	if err := h.store.UploadPaper(c.Request.Context(), key, contentType, rc, file.Size); err != nil {
		h.logger.Error("paper upload failed", zap.Error(err), zap.String("key", key))
		response.ServiceUnavailable(c, "file storage unavailable")
		return
	}
	response.Created(c, gin.H{
		"paper_key":    key,
		"content_type": contentType,
		"file_size":    file.Size,
		"filename":     file.Filename,
	})
}
