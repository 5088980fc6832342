package analyses

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/extract"
	"cais-backend/internal/llm"
	"cais-backend/internal/shared/server/respond"
)

const maxUploadBytes = 32 << 20

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.analyze)
	rg.GET("/analyses/:id", h.getResult)
}

func (h *Handler) analyze(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart form", nil)
		return
	}

	companyName := c.PostForm("companyName")
	if companyName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "companyName is required", nil)
		return
	}

	form := c.Request.MultipartForm
	fileHeaders := form.File["documents"]
	if len(fileHeaders) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one document is required", nil)
		return
	}

	documents := make([]UploadedFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		data, err := readUpload(fh)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "failed to read document "+fh.Filename, nil)
			return
		}
		documents = append(documents, UploadedFile{Name: fh.Filename, Data: data})
	}

	codeHeaders := form.File["codes"]
	if len(codeHeaders) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "a candidate code sheet is required", nil)
		return
	}
	codesData, err := readUpload(codeHeaders[0])
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "failed to read code sheet", nil)
		return
	}
	codes, err := extract.ParseCandidateCodes(codesData, codeHeaders[0].Filename)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	analysis, err := h.Svc.Analyze(c.Request.Context(), AnalyzeInput{
		CompanyName:    companyName,
		Documents:      documents,
		CandidateCodes: codes,
		PromptVersion:  c.PostForm("promptVersion"),
	})
	if err != nil {
		var failed *AnalysisFailedError
		switch {
		case errors.As(err, &failed):
			respond.Error(c, http.StatusBadGateway, "analysis_failed", "both classification tasks failed", gin.H{
				"jurisdiction": sanitizeError(failed.JurisdictionErr),
				"counterparty": sanitizeError(failed.CounterpartyErr),
			})
		case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrNoText):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to run analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"companyName":  analysis.CompanyName,
		"jurisdiction": taskPayload(analysis.Jurisdiction, analysis.JurisdictionErr),
		"counterparty": taskPayload(analysis.Counterparty, analysis.CounterpartyErr),
	})
}

func taskPayload(result *ClassificationResult, err error) gin.H {
	if err != nil {
		return gin.H{
			"error":     sanitizeError(err),
			"errorCode": classifyTaskError(err),
		}
	}
	return gin.H{
		"id":            result.ID,
		"value":         result.Value,
		"reasoning":     result.Reasoning,
		"citation":      result.Citation,
		"promptVersion": result.PromptVersion,
		"documentNames": result.DocumentNames,
		"createdAt":     result.CreatedAt,
	}
}

func classifyTaskError(err error) string {
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		return "llm_unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrInvalidSelection):
		return "invalid_selection"
	default:
		return "internal_error"
	}
}

func (h *Handler) getResult(c *gin.Context) {
	resultID := c.Param("id")
	if resultID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "result id is required", nil)
		return
	}

	result, err := h.Svc.Get(c.Request.Context(), resultID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "classification result not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch result", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, result)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
