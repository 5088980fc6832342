package optimize

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/feedback"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the optimizer.
type Handler struct {
	Opt *Optimizer
}

// NewHandler constructs a Handler.
func NewHandler(opt *Optimizer) *Handler {
	return &Handler{Opt: opt}
}

// RegisterRoutes attaches optimization routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/prompts/:task/optimize", h.optimize)
}

type optimizeRequest struct {
	BaseLabel string     `json:"baseLabel"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
}

func (h *Handler) optimize(c *gin.Context) {
	task, err := prompts.ParseTask(c.Param("task"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	var req optimizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	var window feedback.Window
	if req.From != nil {
		window.From = *req.From
	}
	if req.To != nil {
		window.To = *req.To
	}

	result, err := h.Opt.Optimize(c.Request.Context(), task, req.BaseLabel, window)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientData):
			respond.Error(c, http.StatusConflict, "insufficient_data", err.Error(), nil)
		case errors.Is(err, prompts.ErrUnknownVersion):
			respond.Error(c, http.StatusNotFound, "not_found", "base prompt version not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "optimization run failed", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, result)
}
