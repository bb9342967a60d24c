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

const testBudgetID = "01960000-0000-7000-8000-0000000000b1"

// --- mock budget service ---

type mockBudgetService struct {
	createBudgetFn         func(ctx context.Context, userID string, input services.BudgetInput) (*models.Budget, error)
	getUserBudgetsFn       func(ctx context.Context, userID string, page pagination.PageRequest, active *bool, asOf time.Time) (*pagination.PageResponse[services.BudgetSummary], error)
	getBudgetByIDFn        func(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	updateBudgetFn         func(ctx context.Context, userID, budgetID string, fields services.BudgetUpdateFields) (*models.Budget, error)
	deleteBudgetFn         func(ctx context.Context, userID, budgetID string) error
	getBudgetProgressFn    func(ctx context.Context, userID, budgetID string, asOf time.Time) (*services.BudgetProgress, error)
	allocateBudgetFn       func(ctx context.Context, userID, budgetID string, period time.Time) (*models.BudgetAllocation, error)
	getBudgetAllocationsFn func(ctx context.Context, userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAllocation], error)
}

func (m *mockBudgetService) CreateBudget(ctx context.Context, userID string, input services.BudgetInput) (*models.Budget, error) {
	if m.createBudgetFn != nil {
		return m.createBudgetFn(ctx, userID, input)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) GetUserBudgets(ctx context.Context, userID string, page pagination.PageRequest, active *bool, asOf time.Time) (*pagination.PageResponse[services.BudgetSummary], error) {
	if m.getUserBudgetsFn != nil {
		return m.getUserBudgetsFn(ctx, userID, page, active, asOf)
	}
	resp := pagination.NewPageResponse([]services.BudgetSummary{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockBudgetService) GetBudgetByID(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	if m.getBudgetByIDFn != nil {
		return m.getBudgetByIDFn(ctx, userID, budgetID)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) UpdateBudget(ctx context.Context, userID, budgetID string, fields services.BudgetUpdateFields) (*models.Budget, error) {
	if m.updateBudgetFn != nil {
		return m.updateBudgetFn(ctx, userID, budgetID, fields)
	}
	return &models.Budget{}, nil
}

func (m *mockBudgetService) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	if m.deleteBudgetFn != nil {
		return m.deleteBudgetFn(ctx, userID, budgetID)
	}
	return nil
}

func (m *mockBudgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string, asOf time.Time) (*services.BudgetProgress, error) {
	if m.getBudgetProgressFn != nil {
		return m.getBudgetProgressFn(ctx, userID, budgetID, asOf)
	}
	return &services.BudgetProgress{}, nil
}

func (m *mockBudgetService) AllocateBudget(ctx context.Context, userID, budgetID string, period time.Time) (*models.BudgetAllocation, error) {
	if m.allocateBudgetFn != nil {
		return m.allocateBudgetFn(ctx, userID, budgetID, period)
	}
	return &models.BudgetAllocation{}, nil
}

func (m *mockBudgetService) GetBudgetAllocations(ctx context.Context, userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAllocation], error) {
	if m.getBudgetAllocationsFn != nil {
		return m.getBudgetAllocationsFn(ctx, userID, budgetID, page)
	}
	resp := pagination.NewPageResponse([]models.BudgetAllocation{}, 1, 20, 0)
	return &resp, nil
}

var _ services.BudgetServicer = (*mockBudgetService)(nil)

func setupBudgetRouter(handler *BudgetHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/budgets", handler.CreateBudget)
	auth.GET("/budgets", handler.GetBudgets)
	auth.GET("/budgets/:id", handler.GetBudget)
	auth.PUT("/budgets/:id", handler.UpdateBudget)
	auth.DELETE("/budgets/:id", handler.DeleteBudget)
	auth.GET("/budgets/:id/progress", handler.GetBudgetProgress)
	auth.GET("/budgets/:id/allocations", handler.GetBudgetAllocations)
	auth.POST("/budgets/:id/allocations", handler.AllocateBudget)
	return r
}

func TestBudgetHandler_CreateBudget(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.BudgetInput
		svc := &mockBudgetService{
			createBudgetFn: func(_ context.Context, userID string, input services.BudgetInput) (*models.Budget, error) {
				got = input
				return &models.Budget{
					Base:        models.Base{ID: testBudgetID},
					UserID:      userID,
					Name:        input.Name,
					AmountType:  input.AmountType,
					AmountValue: *input.AmountValue,
					Active:      true,
				}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Groceries","amount_type":"fixed","amount_value":"500.50","category_ids":["a","b"]}`)

		assertStatus(t, rec, http.StatusCreated)
		budget := parseJSON(t, rec)["budget"].(map[string]interface{})
		if budget["name"] != "Groceries" {
			t.Errorf("expected Groceries, got %v", budget["name"])
		}
		if budget["amount_value"] != "500.5" {
			t.Errorf("expected amount_value 500.5, got %v", budget["amount_value"])
		}
		if len(got.CategoryIDs) != 2 || got.Active != nil {
			t.Errorf("unexpected service input %+v", got)
		}
	})

	t.Run("accepts numeric amount", func(t *testing.T) {
		var got *decimal.Decimal
		svc := &mockBudgetService{
			createBudgetFn: func(_ context.Context, _ string, input services.BudgetInput) (*models.Budget, error) {
				got = input.AmountValue
				return &models.Budget{}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "POST", "/budgets",
			`{"name":"Fun","amount_type":"percentage","amount_value":12.5,"category_ids":["a"]}`)

		assertStatus(t, rec, http.StatusCreated)
		if got == nil || !got.Equal(decimal.RequireFromString("12.5")) {
			t.Errorf("expected 12.5, got %v", got)
		}
	})

	t.Run("renders every field error", func(t *testing.T) {
		svc := &mockBudgetService{
			createBudgetFn: func(context.Context, string, services.BudgetInput) (*models.Budget, error) {
				var fields apperrors.FieldErrors
				fields.Add("name", "budget name is required")
				fields.Add("category_ids", "at least one category must be selected")
				return nil, fields.Err()
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "POST", "/budgets", `{}`)

		assertStatus(t, rec, http.StatusBadRequest)
		result := parseJSON(t, rec)
		assertErrorCode(t, result, "INVALID_INPUT")
		fields := result["error"].(map[string]interface{})["fields"].(map[string]interface{})
		if len(fields) != 2 {
			t.Errorf("expected 2 field errors, got %v", fields)
		}
	})

	t.Run("returns 400 on malformed body", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))

		rec := doRequest(r, "POST", "/budgets", `{"amount_value":"lots"}`)

		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestBudgetHandler_GetBudgets(t *testing.T) {
	t.Run("passes filters through", func(t *testing.T) {
		var gotActive *bool
		var gotAsOf time.Time
		var gotPage pagination.PageRequest
		svc := &mockBudgetService{
			getUserBudgetsFn: func(_ context.Context, _ string, page pagination.PageRequest, active *bool, asOf time.Time) (*pagination.PageResponse[services.BudgetSummary], error) {
				gotActive, gotAsOf, gotPage = active, asOf, page
				resp := pagination.NewPageResponse([]services.BudgetSummary{{
					Budget:    models.Budget{Name: "Food"},
					Allocated: decimal.NewFromInt(300),
					Spent:     decimal.NewFromInt(120),
					Remaining: decimal.NewFromInt(180),
				}}, 2, 5, 6)
				return &resp, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "GET", "/budgets?active=true&date=2025-03-14&page=2&page_size=5", "")

		assertStatus(t, rec, http.StatusOK)
		if gotActive == nil || !*gotActive {
			t.Error("expected active=true filter")
		}
		if !gotAsOf.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected date %v", gotAsOf)
		}
		if gotPage.Page != 2 || gotPage.PageSize != 5 {
			t.Errorf("unexpected page %+v", gotPage)
		}
		item := parseJSON(t, rec)["data"].([]interface{})[0].(map[string]interface{})
		if item["remaining"] != "180" || item["name"] != "Food" {
			t.Errorf("unexpected summary %v", item)
		}
	})

	t.Run("returns 400 on invalid active", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))
		rec := doRequest(r, "GET", "/budgets?active=maybe", "")
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("returns 400 on invalid date", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))
		rec := doRequest(r, "GET", "/budgets?date=14/03/2025", "")
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("returns 400 on oversized page", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))
		rec := doRequest(r, "GET", "/budgets?page_size=500", "")
		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestBudgetHandler_GetBudget(t *testing.T) {
	t.Run("returns budget", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetByIDFn: func(_ context.Context, _, budgetID string) (*models.Budget, error) {
				return &models.Budget{Base: models.Base{ID: budgetID}, Name: "Food"}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID, "")

		assertStatus(t, rec, http.StatusOK)
		budget := parseJSON(t, rec)["budget"].(map[string]interface{})
		if budget["id"] != testBudgetID {
			t.Errorf("unexpected id %v", budget["id"])
		}
	})

	t.Run("returns 400 on invalid id", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))
		rec := doRequest(r, "GET", "/budgets/42", "")
		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("maps service errors", func(t *testing.T) {
		for code, err := range map[string]error{
			"BUDGET_NOT_FOUND": apperrors.ErrBudgetNotFound,
			"FORBIDDEN":        apperrors.ErrForbidden,
		} {
			svc := &mockBudgetService{
				getBudgetByIDFn: func(context.Context, string, string) (*models.Budget, error) { return nil, err },
			}
			rec := doRequest(setupBudgetRouter(NewBudgetHandler(svc, nil)), "GET", "/budgets/"+testBudgetID, "")
			assertErrorCode(t, parseJSON(t, rec), code)
		}
	})
}

func TestBudgetHandler_UpdateBudget(t *testing.T) {
	t.Run("keeps categories when omitted", func(t *testing.T) {
		var got services.BudgetUpdateFields
		svc := &mockBudgetService{
			updateBudgetFn: func(_ context.Context, _, _ string, fields services.BudgetUpdateFields) (*models.Budget, error) {
				got = fields
				return &models.Budget{Name: *fields.Name}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "PUT", "/budgets/"+testBudgetID, `{"name":"Food & drink","active":false}`)

		assertStatus(t, rec, http.StatusOK)
		if got.CategoryIDs != nil {
			t.Errorf("expected nil category ids, got %v", got.CategoryIDs)
		}
		if got.Active == nil || *got.Active {
			t.Error("expected active=false")
		}
	})

	t.Run("forwards an empty category set", func(t *testing.T) {
		var got services.BudgetUpdateFields
		svc := &mockBudgetService{
			updateBudgetFn: func(_ context.Context, _, _ string, fields services.BudgetUpdateFields) (*models.Budget, error) {
				got = fields
				return nil, apperrors.WithFields(apperrors.ErrInvalidInput, map[string]string{"category_ids": "at least one category must be selected"})
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "PUT", "/budgets/"+testBudgetID, `{"category_ids":[]}`)

		assertStatus(t, rec, http.StatusBadRequest)
		if got.CategoryIDs == nil || len(got.CategoryIDs) != 0 {
			t.Errorf("expected empty non-nil category ids, got %#v", got.CategoryIDs)
		}
	})
}

func TestBudgetHandler_DeleteBudget(t *testing.T) {
	t.Run("returns 200", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))
		rec := doRequest(r, "DELETE", "/budgets/"+testBudgetID, "")
		assertStatus(t, rec, http.StatusOK)
	})

	t.Run("returns 404", func(t *testing.T) {
		svc := &mockBudgetService{
			deleteBudgetFn: func(context.Context, string, string) error { return apperrors.ErrBudgetNotFound },
		}
		rec := doRequest(setupBudgetRouter(NewBudgetHandler(svc, nil)), "DELETE", "/budgets/"+testBudgetID, "")
		assertStatus(t, rec, http.StatusNotFound)
	})
}

func TestBudgetHandler_GetBudgetProgress(t *testing.T) {
	var gotAsOf time.Time
	svc := &mockBudgetService{
		getBudgetProgressFn: func(_ context.Context, _, budgetID string, asOf time.Time) (*services.BudgetProgress, error) {
			gotAsOf = asOf
			return &services.BudgetProgress{
				BudgetID:              budgetID,
				Allocated:             decimal.NewFromInt(500),
				Spent:                 decimal.NewFromInt(700),
				Remaining:             decimal.NewFromInt(-200),
				Percentage:            140,
				UnconvertedCurrencies: []string{"CHF"},
			}, nil
		},
	}
	r := setupBudgetRouter(NewBudgetHandler(svc, nil))

	rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/progress?date=2025-02-10", "")

	assertStatus(t, rec, http.StatusOK)
	if !gotAsOf.Equal(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", gotAsOf)
	}
	progress := parseJSON(t, rec)["progress"].(map[string]interface{})
	if progress["remaining"] != "-200" {
		t.Errorf("expected remaining -200, got %v", progress["remaining"])
	}
	if len(progress["unconverted_currencies"].([]interface{})) != 1 {
		t.Errorf("expected unconverted currencies, got %v", progress)
	}
}

func TestBudgetHandler_Allocations(t *testing.T) {
	t.Run("allocates the requested month", func(t *testing.T) {
		var gotPeriod time.Time
		svc := &mockBudgetService{
			allocateBudgetFn: func(_ context.Context, _, budgetID string, period time.Time) (*models.BudgetAllocation, error) {
				gotPeriod = period
				return &models.BudgetAllocation{BudgetID: budgetID, Period: period, Amount: decimal.NewFromInt(500)}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/allocations", `{"period":"2025-01-20"}`)

		assertStatus(t, rec, http.StatusOK)
		if !gotPeriod.Equal(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected period %v", gotPeriod)
		}
		allocation := parseJSON(t, rec)["allocation"].(map[string]interface{})
		if allocation["amount"] != "500" {
			t.Errorf("unexpected allocation %v", allocation)
		}
	})

	t.Run("defaults to the current month", func(t *testing.T) {
		var gotPeriod time.Time
		svc := &mockBudgetService{
			allocateBudgetFn: func(_ context.Context, _, _ string, period time.Time) (*models.BudgetAllocation, error) {
				gotPeriod = period
				return &models.BudgetAllocation{}, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/allocations", "")

		assertStatus(t, rec, http.StatusOK)
		now := time.Now().UTC()
		if gotPeriod.Year() != now.Year() || gotPeriod.Month() != now.Month() {
			t.Errorf("expected current month, got %v", gotPeriod)
		}
	})

	t.Run("rejects a bad period", func(t *testing.T) {
		r := setupBudgetRouter(NewBudgetHandler(&mockBudgetService{}, nil))
		rec := doRequest(r, "POST", "/budgets/"+testBudgetID+"/allocations", `{"period":"soon"}`)
		assertStatus(t, rec, http.StatusBadRequest)
		errObj := parseJSON(t, rec)["error"].(map[string]interface{})
		if _, ok := errObj["fields"].(map[string]interface{})["period"]; !ok {
			t.Errorf("expected period field error, got %v", errObj)
		}
	})

	t.Run("lists history", func(t *testing.T) {
		svc := &mockBudgetService{
			getBudgetAllocationsFn: func(_ context.Context, _, _ string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAllocation], error) {
				resp := pagination.NewPageResponse([]models.BudgetAllocation{{Amount: decimal.NewFromInt(1)}}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupBudgetRouter(NewBudgetHandler(svc, nil))

		rec := doRequest(r, "GET", "/budgets/"+testBudgetID+"/allocations", "")

		assertStatus(t, rec, http.StatusOK)
		if parseJSON(t, rec)["total_items"].(float64) != 1 {
			t.Error("expected one allocation")
		}
	})
}
