package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/http/response"
	"knowledgehub/internal/logger"
)

type DocumentHandler struct {
	log      *logger.Logger
	hub      KnowledgeHub
	maxBytes int64
}

func NewDocumentHandler(log *logger.Logger, hub KnowledgeHub, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &DocumentHandler{
		log:      log.With("handler", "DocumentHandler"),
		hub:      hub,
		maxBytes: maxUploadBytes,
	}
}

// POST /upload
func (h *DocumentHandler) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.maxBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", errors.New("upload exceeds size limit"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}

	res, err := h.hub.Upload(c.Request.Context(), fh.Filename, data)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /stats
func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, stats)
}

type documentView struct {
	ID         string                `json:"doc_id"`
	Filename   string                `json:"filename,omitempty"`
	Status     domain.DocumentStatus `json:"status"`
	ChunkCount int                   `json:"chunk_count"`
	UploadedAt string                `json:"uploaded_at,omitempty"`
}

// GET /documents
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.hub.Documents(c.Request.Context())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		v := documentView{ID: d.ID, Filename: d.Filename, Status: d.Status, ChunkCount: d.ChunkCount}
		if !d.UploadedAt.IsZero() {
			v.UploadedAt = d.UploadedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, v)
	}
	response.RespondOK(c, gin.H{"documents": out})
}

// DELETE /documents/:doc_id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("doc_id"))
	deleted, err := h.hub.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"doc_id": id, "deleted": deleted})
}
