package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/services"
)

// SubscriptionHandler handles recurring expense requests.
type SubscriptionHandler struct {
	subscriptionService services.SubscriptionServicer
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptionService services.SubscriptionServicer) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// CreateSubscriptionRequest represents the request payload for creating a subscription.
type CreateSubscriptionRequest struct {
	AccountID     string              `json:"account_id" binding:"omitempty,uuid"`
	CategoryID    string              `json:"category_id" binding:"omitempty,uuid"`
	Vendor        string              `json:"vendor"`
	Description   string              `json:"description" binding:"max=500"`
	InputAmount   decimal.Decimal     `json:"input_amount" swaggertype:"string"`
	InputCurrency string              `json:"input_currency"`
	StartsOn      *string             `json:"starts_on" example:"2025-01-31"`
	IntervalUnit  models.IntervalUnit `json:"interval_unit"`
	Active        *bool               `json:"active"`
}

// UpdateSubscriptionRequest represents the request payload for updating a subscription.
type UpdateSubscriptionRequest struct {
	AccountID     *string              `json:"account_id" binding:"omitempty,uuid"`
	CategoryID    *string              `json:"category_id" binding:"omitempty,uuid"`
	Vendor        *string              `json:"vendor"`
	Description   *string              `json:"description" binding:"omitempty,max=500"`
	InputAmount   *decimal.Decimal     `json:"input_amount" swaggertype:"string"`
	InputCurrency *string              `json:"input_currency"`
	StartsOn      *string              `json:"starts_on" example:"2025-01-31"`
	IntervalUnit  *models.IntervalUnit `json:"interval_unit"`
	Active        *bool                `json:"active"`
}

// CreateSubscription handles the creation of a subscription.
// @Summary     Create a subscription
// @Description Create a recurring expense. The first charge is made on starts_on.
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateSubscriptionRequest true "Subscription details"
// @Success     201 {object} models.Subscription "Subscription created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Account or category belongs to another user"
// @Failure     404 {object} ErrorResponse "Account or category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	startsOn, err := parseDateField(req.StartsOn, "starts_on")
	if err != nil {
		respondWithError(c, err)
		return
	}

	input := services.SubscriptionInput{
		AccountID:     req.AccountID,
		CategoryID:    req.CategoryID,
		Vendor:        req.Vendor,
		Description:   req.Description,
		InputAmount:   req.InputAmount,
		InputCurrency: req.InputCurrency,
		IntervalUnit:  req.IntervalUnit,
		Active:        req.Active,
	}
	if startsOn != nil {
		input.StartsOn = *startsOn
	}

	sub, err := h.subscriptionService.CreateSubscription(c.Request.Context(), userID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"subscription": sub})
}

// GetSubscriptions handles listing subscriptions.
// @Summary     Get subscriptions
// @Description Get a paginated list of subscriptions, soonest next run first
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       active    query bool false "Filter by active status"
// @Param       page      query int  false "Page number (default 1)"
// @Param       page_size query int  false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Subscription] "Paginated subscriptions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions [get]
func (h *SubscriptionHandler) GetSubscriptions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	active, err := parseOptionalBool(c, "active")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.subscriptionService.GetUserSubscriptions(c.Request.Context(), userID, page, active)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSubscription handles retrieving one subscription.
// @Summary     Get subscription by ID
// @Description Get a specific subscription by ID
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Subscription ID"
// @Success     200 {object} models.Subscription "Subscription details"
// @Failure     400 {object} ErrorResponse "Invalid subscription ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Subscription belongs to another user"
// @Failure     404 {object} ErrorResponse "Subscription not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id} [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	subscriptionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.subscriptionService.GetSubscriptionByID(c.Request.Context(), userID, subscriptionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// UpdateSubscription handles updating a subscription.
// @Summary     Update subscription
// @Description Update a subscription. A new start date reschedules it only if it has not run yet.
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                    true "Subscription ID"
// @Param       request body UpdateSubscriptionRequest true "Updated subscription details"
// @Success     200 {object} models.Subscription "Updated subscription"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Subscription belongs to another user"
// @Failure     404 {object} ErrorResponse "Subscription not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id} [put]
func (h *SubscriptionHandler) UpdateSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	subscriptionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	startsOn, err := parseDateField(req.StartsOn, "starts_on")
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.subscriptionService.UpdateSubscription(c.Request.Context(), userID, subscriptionID, services.SubscriptionUpdateFields{
		AccountID:     req.AccountID,
		CategoryID:    req.CategoryID,
		Vendor:        req.Vendor,
		Description:   req.Description,
		InputAmount:   req.InputAmount,
		InputCurrency: req.InputCurrency,
		StartsOn:      startsOn,
		IntervalUnit:  req.IntervalUnit,
		Active:        req.Active,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// DeleteSubscription handles deleting a subscription.
// @Summary     Delete subscription
// @Description Delete a subscription. Transactions it already generated are kept.
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Subscription ID"
// @Success     200 {object} map[string]string "Subscription deleted"
// @Failure     400 {object} ErrorResponse "Invalid subscription ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Subscription belongs to another user"
// @Failure     404 {object} ErrorResponse "Subscription not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id} [delete]
func (h *SubscriptionHandler) DeleteSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	subscriptionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.subscriptionService.DeleteSubscription(c.Request.Context(), userID, subscriptionID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription deleted successfully"})
}
