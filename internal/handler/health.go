package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health godoc
// @Summary      Health check
// @Description  Returns the health status of the service and whether a model is loaded
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	loaded := false
	if h.models != nil {
		_, loaded = h.models.Loaded()
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": loaded})
}
