package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	"github.com/noah-isme/registree/pkg/response"
)

type settingsService interface {
	Get(ctx context.Context) (*models.SchoolSettings, error)
	Update(ctx context.Context, in models.SchoolSettings, actor string) (*models.SchoolSettings, error)
}

type statsService interface {
	Dashboard(ctx context.Context, day time.Time) (*service.DashboardStats, error)
}

type promotionService interface {
	PromoteAll(ctx context.Context) (*service.PromotionResult, error)
}

// SchoolHandler exposes school-wide settings, the dashboard figures and the
// yearly promotion run.
type SchoolHandler struct {
	settings  settingsService
	stats     statsService
	promotion promotionService
	history   historyStater
}

// NewSchoolHandler constructs the handler.
func NewSchoolHandler(settings settingsService, stats statsService, promotion promotionService, history historyStater) *SchoolHandler {
	return &SchoolHandler{settings: settings, stats: stats, promotion: promotion, history: history}
}

// Settings godoc
// @Summary School settings
// @Tags School
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SchoolHandler) Settings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings)
}

// UpdateSettings godoc
// @Summary Save school settings
// @Tags School
// @Accept json
// @Produce json
// @Param payload body models.SchoolSettings true "Settings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings [put]
func (h *SchoolHandler) UpdateSettings(c *gin.Context) {
	var req models.SchoolSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid settings payload"))
		return
	}
	ctx := c.Request.Context()
	settings, err := h.settings.Update(ctx, req, service.ActorFromContext(ctx))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings)
}

// Stats godoc
// @Summary Dashboard figures for one day
// @Tags School
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD), default today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /stats [get]
func (h *SchoolHandler) Stats(c *gin.Context) {
	var day time.Time
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, bindError(err, "date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	stats, err := h.stats.Dashboard(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// Promote godoc
// @Summary Promote every active student one grade
// @Tags School
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /students/promote [post]
func (h *SchoolHandler) Promote(c *gin.Context) {
	result, err := h.promotion.PromoteAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{"history": h.history.State()})
}
