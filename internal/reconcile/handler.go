package reconcile

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"loadline_backend/platform/apperr"
	"loadline_backend/platform/httpkit"
	"loadline_backend/platform/validator"
)

// RunRequest optionally overrides the sweep window.
type RunRequest struct {
	HoursBack int `json:"hoursBack" validate:"omitempty,min=1,max=720"`
}

// Handler handles reconciliation HTTP requests.
type Handler struct {
	service          *Service
	val              *validator.Validator
	defaultHoursBack int
}

// NewHandler creates a new reconcile handler.
func NewHandler(service *Service, val *validator.Validator, defaultHoursBack int) *Handler {
	return &Handler{service: service, val: val, defaultHoursBack: defaultHoursBack}
}

// HandleRun triggers a sweep on demand and returns its report.
// POST /api/v1/ops/reconcile
func (h *Handler) HandleRun(c *gin.Context) {
	req := RunRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.HandleError(c, apperr.Validation("invalid request body"))
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.HandleError(c, apperr.Validation("hoursBack must be between 1 and 720"))
			return
		}
	}
	hoursBack := req.HoursBack
	if hoursBack == 0 {
		hoursBack = h.defaultHoursBack
	}

	report, err := h.service.Run(c.Request.Context(), hoursBack)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, report)
}
