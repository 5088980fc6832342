package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the usage service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.getSummary)
}

func (h *Handler) getSummary(c *gin.Context) {
	summary, err := h.Svc.Summary(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to compute usage summary", nil)
		return
	}
	respond.JSON(c, http.StatusOK, summary)
}
