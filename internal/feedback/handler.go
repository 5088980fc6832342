package feedback

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the feedback service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches feedback routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/feedback", h.submit)
}

type submitRequest struct {
	ResultID       string `json:"resultId" binding:"required"`
	IsCorrect      *bool  `json:"isCorrect" binding:"required"`
	CorrectedValue string `json:"correctedValue"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "resultId and isCorrect are required", nil)
		return
	}

	fb, err := h.Svc.Submit(c.Request.Context(), SubmitInput{
		ResultID:       req.ResultID,
		IsCorrect:      *req.IsCorrect,
		CorrectedValue: req.CorrectedValue,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownResult):
			respond.Error(c, http.StatusNotFound, "not_found", "classification result not found", nil)
		case errors.Is(err, ErrMissingCorrection), errors.Is(err, ErrInvalidCorrection):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit feedback", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, fb)
}
