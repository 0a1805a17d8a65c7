package derivation

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/trialdata-api/internal/middleware"
	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/service/derivation"
	"github.com/jwalitptl/trialdata-api/internal/service/export"
	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
	"github.com/jwalitptl/trialdata-api/pkg/httputil"
)

type Handler struct {
	service  *derivation.Service
	exporter *export.Exporter
}

func NewHandler(service *derivation.Service, exporter *export.Exporter) *Handler {
	return &Handler{
		service:  service,
		exporter: exporter,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/studies/:study/runs", h.CreateRun)
	r.GET("/studies/:study/runs", h.ListRuns)

	runs := r.Group("/runs/:id")
	{
		runs.GET("", h.GetRun)
		runs.GET("/report", h.GetReport)
		runs.GET("/records", h.ListRecords)
		runs.GET("/export", h.Export)
	}
}

func (h *Handler) CreateRun(c *gin.Context) {
	var req model.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	run, err := h.service.CreateRun(c.Request.Context(), c.Param("study"), c.GetString(middleware.ContextClientID), req.Notify)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, run)
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.service.ListRuns(c.Request.Context(), c.Param("study"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, runs)
}

func (h *Handler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid run id", err))
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, run)
}

func (h *Handler) GetReport(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid run id", err))
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), runID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, report)
}

func (h *Handler) ListRecords(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid run id", err))
		return
	}

	filters := &model.AnalysisRecordFilters{
		SubjectID:    c.Query("subject_id"),
		ParamCode:    c.Query("param_code"),
		BaselineOnly: c.Query("baseline_only") == "true",
	}

	records, err := h.service.ListRecords(c.Request.Context(), runID, filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, records)
}

// Export streams a run's analysis records as CSV or XLSX.
func (h *Handler) Export(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid run id", err))
		return
	}

	records, err := h.service.ListRecords(c.Request.Context(), runID, nil)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", runID))
		if err := h.exporter.WriteCSV(c.Writer, records); err != nil {
			c.Error(err) //nolint:errcheck
		}
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", runID))
		if err := h.exporter.WriteXLSX(c.Writer, records); err != nil {
			c.Error(err) //nolint:errcheck
		}
	default:
		httputil.RespondWithError(c, apperrors.BadRequest("unsupported export format", nil))
	}
}
