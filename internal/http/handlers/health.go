package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	hub KnowledgeHub
}

func NewHealthHandler(hub KnowledgeHub) *HealthHandler { return &HealthHandler{hub: hub} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := h.hub.Health(c.Request.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
