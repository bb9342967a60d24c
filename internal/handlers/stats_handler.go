package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/period"
	"pennywise/internal/services"
)

// StatsHandler serves the dashboard and monthly reports.
type StatsHandler struct {
	statsService services.StatsServicer
	clock        period.Clock
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(statsService services.StatsServicer, clock period.Clock) *StatsHandler {
	return &StatsHandler{statsService: statsService, clock: clock}
}

// GetDashboard handles the dashboard summary.
// @Summary     Get dashboard
// @Description All-time income, expense and net total in the main currency, with the latest transactions
// @Tags        stats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.DashboardSummary "Dashboard"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard [get]
func (h *StatsHandler) GetDashboard(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.statsService.GetDashboard(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dashboard": summary})
}

// GetMonthlyStats handles the per-category and per-day breakdown of a month.
// @Summary     Get monthly stats
// @Description Totals by category and by day for one month of income or expense
// @Tags        stats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       type query string true  "Transaction type (income, expense)"
// @Param       date query string false "Any day of the month (YYYY-MM-DD, default today)"
// @Success     200 {object} services.MonthlyStats "Monthly stats"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stats [get]
func (h *StatsHandler) GetMonthlyStats(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txType := models.TransactionType(c.Query("type"))
	if txType == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "type is required"))
		return
	}
	asOf, err := parseDateQuery(c, "date", h.clock)
	if err != nil {
		respondWithError(c, err)
		return
	}

	stats, err := h.statsService.GetMonthlyStats(c.Request.Context(), userID, txType, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
