package handler

import (
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// paramCodePattern matches short parameter codes (HGB, SYSBP, QTCF).
var paramCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)

// Handler contains dependencies for all handlers
type Handler struct {
}

// NewHandler creates a new handler instance
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterValidations installs custom binding validators.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("paramcode", func(fl validator.FieldLevel) bool {
		return paramCodePattern.MatchString(fl.Field().String())
	})
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"time":   time.Now(),
	})
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
