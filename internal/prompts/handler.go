package prompts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the prompt registry.
type Handler struct {
	Registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{Registry: registry}
}

// RegisterRoutes attaches prompt routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/prompts/:task", h.listVersions)
	rg.POST("/prompts/:task/activate", h.activateVersion)
}

func (h *Handler) listVersions(c *gin.Context) {
	task, err := ParseTask(c.Param("task"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	activeLabel := ""
	if active, err := h.Registry.Active(task); err == nil {
		activeLabel = active.Label
	}

	versions := h.Registry.List(task)
	items := make([]gin.H, 0, len(versions))
	for _, v := range versions {
		item := gin.H{
			"label":     v.Label,
			"createdAt": v.CreatedAt,
			"active":    v.Label == activeLabel,
		}
		if v.Accuracy != nil {
			item["accuracy"] = *v.Accuracy
		}
		items = append(items, item)
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"task":     string(task),
		"active":   activeLabel,
		"versions": items,
	})
}

type activateRequest struct {
	Label string `json:"label" binding:"required"`
}

func (h *Handler) activateVersion(c *gin.Context) {
	task, err := ParseTask(c.Param("task"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "label is required", nil)
		return
	}

	if err := h.Registry.Activate(c.Request.Context(), task, req.Label); err != nil {
		switch {
		case errors.Is(err, ErrUnknownVersion):
			respond.Error(c, http.StatusNotFound, "not_found", "prompt version not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to activate prompt version", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"task":   string(task),
		"active": req.Label,
	})
}
