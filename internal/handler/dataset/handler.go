package dataset

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/service/dataset"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
	"github.com/jwalitptl/trialdata-api/pkg/httputil"
)

type Handler struct {
	service *dataset.Service
}

func NewHandler(service *dataset.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	studies := r.Group("/studies/:study")
	{
		studies.POST("/observations", h.CreateObservations)
		studies.GET("/observations", h.ListObservations)
		studies.POST("/domains/:domain/rows", h.CreateDomainRows)
		studies.POST("/reference-dates", h.CreateReferenceDates)
		studies.GET("/reference-dates", h.ListReferenceDates)
	}
}

func (h *Handler) CreateObservations(c *gin.Context) {
	var req model.CreateObservationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	observations, err := h.service.IngestObservations(c.Request.Context(), c.Param("study"), req.Observations)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, gin.H{"count": len(observations)})
}

// CreateDomainRows ingests raw per-domain rows through the mapping engine.
func (h *Handler) CreateDomainRows(c *gin.Context) {
	var rows []map[string]string
	if err := c.ShouldBindJSON(&rows); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	observations, err := h.service.IngestRows(c.Request.Context(), c.Param("study"), c.Param("domain"), rows)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, gin.H{"count": len(observations)})
}

func (h *Handler) ListObservations(c *gin.Context) {
	filters := &model.ObservationFilters{
		SubjectID: c.Query("subject_id"),
		ParamCode: c.Query("param_code"),
	}

	observations, err := h.service.ListObservations(c.Request.Context(), c.Param("study"), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, observations)
}

func (h *Handler) CreateReferenceDates(c *gin.Context) {
	var req model.CreateReferenceDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	refs, err := h.service.IngestReferenceDates(c.Request.Context(), c.Param("study"), req.ReferenceDates)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, gin.H{"count": len(refs)})
}

func (h *Handler) ListReferenceDates(c *gin.Context) {
	refs, err := h.service.ListReferenceDates(c.Request.Context(), c.Param("study"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, refs)
}
