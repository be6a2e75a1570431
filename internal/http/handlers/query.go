package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/http/response"
	"knowledgehub/internal/logger"
)

type QueryHandler struct {
	log *logger.Logger
	hub KnowledgeHub
}

func NewQueryHandler(log *logger.Logger, hub KnowledgeHub) *QueryHandler {
	return &QueryHandler{log: log.With("handler", "QueryHandler"), hub: hub}
}

type queryRequest struct {
	Question     string `json:"question" binding:"required"`
	TopK         int    `json:"top_k"`
	SystemPrompt string `json:"system_prompt"`
}

func (h *QueryHandler) bind(c *gin.Context) (queryRequest, bool) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return req, false
	}
	if req.TopK < 0 || req.TopK > 50 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("top_k must be between 1 and 50"))
		return req, false
	}
	return req, true
}

// POST /query
func (h *QueryHandler) Query(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	ans, err := h.hub.Query(c.Request.Context(), req.Question, req.TopK, req.SystemPrompt)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, ans)
}

// POST /query/stream answers as server-sent events: "delta" events with the
// answer text, one "sources" event, then a bare [DONE] data line. Failures
// after the stream has started are reported as an "error" event.
func (h *QueryHandler) QueryStream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, sources, err := h.hub.QueryStream(ctx, req.Question, req.TopK, req.SystemPrompt)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	defer stream.Close()

	// cancel the upstream completion when the client goes away
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stop:
		}
	}()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	deltas := 0
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, domain.ErrStreamCancelled) {
				h.log.Info("stream cancelled by client", "deltas", deltas)
				return
			}
			_, code := response.Classify(err)
			payload, _ := json.Marshal(response.APIError{Message: err.Error(), Code: code})
			_ = response.WriteSSE(w, "error", string(payload))
			w.Flush()
			_ = c.Error(err)
			return
		}
		deltas++
		payload, _ := json.Marshal(map[string]string{"delta": delta})
		if err := response.WriteSSE(w, "delta", string(payload)); err != nil {
			return
		}
		w.Flush()
	}

	payload, _ := json.Marshal(map[string]any{"sources": sources})
	_ = response.WriteSSE(w, "sources", string(payload))
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	w.Flush()
}
