package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
	"pennywise/internal/services"
)

const testSubscriptionID = "01960000-0000-7000-8000-0000000000e1"

// --- mock subscription service ---

type mockSubscriptionService struct {
	createSubscriptionFn   func(ctx context.Context, userID string, input services.SubscriptionInput) (*models.Subscription, error)
	getUserSubscriptionsFn func(ctx context.Context, userID string, page pagination.PageRequest, active *bool) (*pagination.PageResponse[models.Subscription], error)
	getSubscriptionByIDFn  func(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error)
	updateSubscriptionFn   func(ctx context.Context, userID, subscriptionID string, fields services.SubscriptionUpdateFields) (*models.Subscription, error)
	deleteSubscriptionFn   func(ctx context.Context, userID, subscriptionID string) error
}

func (m *mockSubscriptionService) CreateSubscription(ctx context.Context, userID string, input services.SubscriptionInput) (*models.Subscription, error) {
	if m.createSubscriptionFn != nil {
		return m.createSubscriptionFn(ctx, userID, input)
	}
	return &models.Subscription{}, nil
}

func (m *mockSubscriptionService) GetUserSubscriptions(ctx context.Context, userID string, page pagination.PageRequest, active *bool) (*pagination.PageResponse[models.Subscription], error) {
	if m.getUserSubscriptionsFn != nil {
		return m.getUserSubscriptionsFn(ctx, userID, page, active)
	}
	resp := pagination.NewPageResponse([]models.Subscription{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockSubscriptionService) GetSubscriptionByID(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	if m.getSubscriptionByIDFn != nil {
		return m.getSubscriptionByIDFn(ctx, userID, subscriptionID)
	}
	return &models.Subscription{}, nil
}

func (m *mockSubscriptionService) UpdateSubscription(ctx context.Context, userID, subscriptionID string, fields services.SubscriptionUpdateFields) (*models.Subscription, error) {
	if m.updateSubscriptionFn != nil {
		return m.updateSubscriptionFn(ctx, userID, subscriptionID, fields)
	}
	return &models.Subscription{}, nil
}

func (m *mockSubscriptionService) DeleteSubscription(ctx context.Context, userID, subscriptionID string) error {
	if m.deleteSubscriptionFn != nil {
		return m.deleteSubscriptionFn(ctx, userID, subscriptionID)
	}
	return nil
}

var _ services.SubscriptionServicer = (*mockSubscriptionService)(nil)

func setupSubscriptionRouter(handler *SubscriptionHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/subscriptions", handler.CreateSubscription)
	auth.GET("/subscriptions", handler.GetSubscriptions)
	auth.GET("/subscriptions/:id", handler.GetSubscription)
	auth.PUT("/subscriptions/:id", handler.UpdateSubscription)
	auth.DELETE("/subscriptions/:id", handler.DeleteSubscription)
	return r
}

func TestSubscriptionHandler_CreateSubscription(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.SubscriptionInput
		svc := &mockSubscriptionService{
			createSubscriptionFn: func(_ context.Context, userID string, input services.SubscriptionInput) (*models.Subscription, error) {
				got = input
				return &models.Subscription{
					Base:         models.Base{ID: testSubscriptionID},
					UserID:       userID,
					Vendor:       input.Vendor,
					InputAmount:  input.InputAmount,
					StartsOn:     input.StartsOn,
					NextRunOn:    input.StartsOn,
					IntervalUnit: input.IntervalUnit,
					Active:       true,
				}, nil
			},
		}
		r := setupSubscriptionRouter(NewSubscriptionHandler(svc))

		rec := doRequest(r, "POST", "/subscriptions",
			`{"account_id":"`+testAccountID+`","category_id":"`+testCategoryID+`","vendor":"Netflix","input_amount":"15.99","starts_on":"2025-01-31","interval_unit":"monthly"}`)

		assertStatus(t, rec, http.StatusCreated)
		sub := parseJSON(t, rec)["subscription"].(map[string]interface{})
		if sub["vendor"] != "Netflix" || sub["input_amount"] != "15.99" {
			t.Errorf("unexpected subscription %v", sub)
		}
		if !got.StartsOn.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)) || got.IntervalUnit != models.IntervalMonthly {
			t.Errorf("unexpected input %+v", got)
		}
	})

	t.Run("renders service field errors", func(t *testing.T) {
		svc := &mockSubscriptionService{
			createSubscriptionFn: func(context.Context, string, services.SubscriptionInput) (*models.Subscription, error) {
				var fields apperrors.FieldErrors
				fields.Add("vendor", "vendor is required")
				fields.Add("interval_unit", "must be daily, weekly, monthly or yearly")
				fields.Add("starts_on", "start date is required")
				return nil, fields.Err()
			},
		}
		rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(svc)), "POST", "/subscriptions", `{}`)

		assertStatus(t, rec, http.StatusBadRequest)
		fields := parseJSON(t, rec)["error"].(map[string]interface{})["fields"].(map[string]interface{})
		if len(fields) != 3 {
			t.Errorf("expected 3 field errors, got %v", fields)
		}
	})

	t.Run("returns 400 on bad start date", func(t *testing.T) {
		rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{})), "POST", "/subscriptions",
			`{"vendor":"Gym","starts_on":"next week"}`)
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("returns 400 on income category", func(t *testing.T) {
		svc := &mockSubscriptionService{
			createSubscriptionFn: func(context.Context, string, services.SubscriptionInput) (*models.Subscription, error) {
				return nil, apperrors.ErrCategoryTypeMismatch
			},
		}
		rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(svc)), "POST", "/subscriptions",
			`{"account_id":"`+testAccountID+`","category_id":"`+testCategoryID+`","vendor":"Gym","input_amount":"30","starts_on":"2025-01-01","interval_unit":"monthly"}`)
		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_TYPE_MISMATCH")
	})
}

func TestSubscriptionHandler_GetSubscriptions(t *testing.T) {
	var gotActive *bool
	svc := &mockSubscriptionService{
		getUserSubscriptionsFn: func(_ context.Context, _ string, _ pagination.PageRequest, active *bool) (*pagination.PageResponse[models.Subscription], error) {
			gotActive = active
			resp := pagination.NewPageResponse([]models.Subscription{{Vendor: "Spotify", InputAmount: decimal.NewFromInt(10)}}, 1, 20, 1)
			return &resp, nil
		},
	}
	rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(svc)), "GET", "/subscriptions?active=false", "")

	assertStatus(t, rec, http.StatusOK)
	if gotActive == nil || *gotActive {
		t.Error("expected active=false filter")
	}
	if len(parseJSON(t, rec)["data"].([]interface{})) != 1 {
		t.Error("expected one subscription")
	}
}

func TestSubscriptionHandler_GetSubscription(t *testing.T) {
	svc := &mockSubscriptionService{
		getSubscriptionByIDFn: func(context.Context, string, string) (*models.Subscription, error) {
			return nil, apperrors.ErrSubscriptionNotFound
		},
	}
	rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(svc)), "GET", "/subscriptions/"+testSubscriptionID, "")
	assertStatus(t, rec, http.StatusNotFound)
	assertErrorCode(t, parseJSON(t, rec), "SUBSCRIPTION_NOT_FOUND")
}

func TestSubscriptionHandler_UpdateSubscription(t *testing.T) {
	t.Run("forwards pause and new schedule", func(t *testing.T) {
		var got services.SubscriptionUpdateFields
		svc := &mockSubscriptionService{
			updateSubscriptionFn: func(_ context.Context, _, _ string, fields services.SubscriptionUpdateFields) (*models.Subscription, error) {
				got = fields
				return &models.Subscription{}, nil
			},
		}
		rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(svc)), "PUT", "/subscriptions/"+testSubscriptionID,
			`{"active":false,"interval_unit":"weekly","starts_on":"2025-02-03"}`)

		assertStatus(t, rec, http.StatusOK)
		if got.Active == nil || *got.Active {
			t.Error("expected active=false")
		}
		if got.IntervalUnit == nil || *got.IntervalUnit != models.IntervalWeekly {
			t.Error("expected weekly interval")
		}
		if got.StartsOn == nil || got.StartsOn.Day() != 3 {
			t.Errorf("unexpected start %v", got.StartsOn)
		}
		if got.Vendor != nil || got.InputAmount != nil {
			t.Error("omitted fields must stay nil")
		}
	})

	t.Run("returns 400 on malformed account", func(t *testing.T) {
		rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{})), "PUT", "/subscriptions/"+testSubscriptionID, `{"account_id":"1"}`)
		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestSubscriptionHandler_DeleteSubscription(t *testing.T) {
	var gotID string
	svc := &mockSubscriptionService{
		deleteSubscriptionFn: func(_ context.Context, _, id string) error {
			gotID = id
			return nil
		},
	}
	rec := doRequest(setupSubscriptionRouter(NewSubscriptionHandler(svc)), "DELETE", "/subscriptions/"+testSubscriptionID, "")
	assertStatus(t, rec, http.StatusOK)
	if gotID != testSubscriptionID {
		t.Errorf("unexpected id %s", gotID)
	}
}
