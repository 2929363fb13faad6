package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetModel godoc
// @Summary      Active model bundle
// @Description  Reports whether a model bundle is loaded and, if so, its id, training time and topology
// @Tags         ml
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/ml/model [get]
func (h *Handler) GetModel(c *gin.Context) {
	if h.models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model service unavailable"})
		return
	}
	b, ok := h.models.Loaded()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"loaded": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": true, "model": b.Info()})
}

// TriggerTraining godoc
// @Summary      Initialise the model
// @Description  Loads the persisted bundle or, when none exists, trains and persists one. An existing bundle is never replaced.
// @Tags         ml
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      422  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/train [post]
func (h *Handler) TriggerTraining(c *gin.Context) {
	if h.models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-training")
	defer span.End()

	trained, res, err := h.models.EnsureModel(ctx)
	if err != nil {
		span.RecordError(err)
		abortWithError(c, err)
		return
	}
	span.SetAttributes(attribute.Bool("model.trained", trained))

	body := gin.H{"status": "ok", "trained": trained}
	if res != nil {
		body["result"] = res
	}
	if b, ok := h.models.Loaded(); ok {
		body["model"] = b.Info()
	}
	c.JSON(http.StatusOK, body)
}
