package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
	"pennywise/internal/services"
)

const testCategoryID = "01960000-0000-7000-8000-0000000000c1"

// --- mock category service ---

type mockCategoryService struct {
	createCategoryFn    func(ctx context.Context, userID string, input services.CategoryInput) (*models.Category, error)
	getUserCategoriesFn func(ctx context.Context, userID string, categoryType *models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	getCategoryByIDFn   func(ctx context.Context, userID, categoryID string) (*models.Category, error)
	updateCategoryFn    func(ctx context.Context, userID, categoryID string, fields services.CategoryUpdateFields) (*models.Category, error)
	deleteCategoryFn    func(ctx context.Context, userID, categoryID string) error
}

func (m *mockCategoryService) CreateCategory(ctx context.Context, userID string, input services.CategoryInput) (*models.Category, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(ctx, userID, input)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) GetUserCategories(ctx context.Context, userID string, categoryType *models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	if m.getUserCategoriesFn != nil {
		return m.getUserCategoriesFn(ctx, userID, categoryType, page)
	}
	resp := pagination.NewPageResponse([]models.Category{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockCategoryService) GetCategoryByID(ctx context.Context, userID, categoryID string) (*models.Category, error) {
	if m.getCategoryByIDFn != nil {
		return m.getCategoryByIDFn(ctx, userID, categoryID)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) UpdateCategory(ctx context.Context, userID, categoryID string, fields services.CategoryUpdateFields) (*models.Category, error) {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(ctx, userID, categoryID, fields)
	}
	return &models.Category{}, nil
}

func (m *mockCategoryService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if m.deleteCategoryFn != nil {
		return m.deleteCategoryFn(ctx, userID, categoryID)
	}
	return nil
}

var _ services.CategoryServicer = (*mockCategoryService)(nil)

func setupCategoryRouter(handler *CategoryHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/categories", handler.CreateCategory)
	auth.GET("/categories", handler.GetUserCategories)
	auth.GET("/categories/:id", handler.GetCategoryByID)
	auth.PUT("/categories/:id", handler.UpdateCategory)
	auth.DELETE("/categories/:id", handler.DeleteCategory)
	return r
}

func TestCategoryHandler_CreateCategory(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var got services.CategoryInput
		svc := &mockCategoryService{
			createCategoryFn: func(_ context.Context, userID string, input services.CategoryInput) (*models.Category, error) {
				got = input
				return &models.Category{Base: models.Base{ID: testCategoryID}, UserID: userID, Name: input.Name, Type: input.Type}, nil
			},
		}
		r := setupCategoryRouter(NewCategoryHandler(svc))

		rec := doRequest(r, "POST", "/categories",
			`{"name":"Groceries","type":"expense","color":"#00ff00","parent_id":"`+testOtherID+`"}`)

		assertStatus(t, rec, http.StatusCreated)
		category := parseJSON(t, rec)["category"].(map[string]interface{})
		if category["name"] != "Groceries" {
			t.Errorf("expected Groceries, got %v", category["name"])
		}
		if got.ParentID == nil || *got.ParentID != testOtherID {
			t.Errorf("expected parent id to be forwarded, got %v", got.ParentID)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"type":"expense"}`},
		{"invalid type", `{"name":"X","type":"transfer"}`},
		{"invalid color", `{"name":"X","type":"expense","color":"green"}`},
		{"invalid parent", `{"name":"X","type":"expense","parent_id":"7"}`},
	}
	for _, tt := range tests {
		t.Run("returns 400 on "+tt.name, func(t *testing.T) {
			rec := doRequest(setupCategoryRouter(NewCategoryHandler(&mockCategoryService{})), "POST", "/categories", tt.body)
			assertStatus(t, rec, http.StatusBadRequest)
			assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
		})
	}

	t.Run("returns 409 on duplicate", func(t *testing.T) {
		svc := &mockCategoryService{
			createCategoryFn: func(context.Context, string, services.CategoryInput) (*models.Category, error) {
				return nil, apperrors.ErrDuplicateCategory
			},
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "POST", "/categories", `{"name":"Food","type":"expense"}`)
		assertStatus(t, rec, http.StatusConflict)
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_CATEGORY")
	})
}

func TestCategoryHandler_GetUserCategories(t *testing.T) {
	t.Run("filters by type", func(t *testing.T) {
		var gotType *models.CategoryType
		svc := &mockCategoryService{
			getUserCategoriesFn: func(_ context.Context, _ string, categoryType *models.CategoryType, _ pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
				gotType = categoryType
				resp := pagination.NewPageResponse([]models.Category{{Name: "Salary", Type: models.CategoryTypeIncome}}, 1, 20, 1)
				return &resp, nil
			},
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "GET", "/categories?type=income", "")

		assertStatus(t, rec, http.StatusOK)
		if gotType == nil || *gotType != models.CategoryTypeIncome {
			t.Errorf("expected income filter, got %v", gotType)
		}
	})

	t.Run("no filter", func(t *testing.T) {
		var called bool
		svc := &mockCategoryService{
			getUserCategoriesFn: func(_ context.Context, _ string, categoryType *models.CategoryType, _ pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
				called = true
				if categoryType != nil {
					t.Error("expected no type filter")
				}
				resp := pagination.NewPageResponse([]models.Category{}, 1, 20, 0)
				return &resp, nil
			},
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "GET", "/categories", "")
		assertStatus(t, rec, http.StatusOK)
		if !called {
			t.Error("service not called")
		}
	})

	t.Run("returns 400 on unknown type", func(t *testing.T) {
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(&mockCategoryService{})), "GET", "/categories?type=savings", "")
		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestCategoryHandler_GetCategoryByID(t *testing.T) {
	t.Run("returns 404", func(t *testing.T) {
		svc := &mockCategoryService{
			getCategoryByIDFn: func(context.Context, string, string) (*models.Category, error) {
				return nil, apperrors.ErrCategoryNotFound
			},
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "GET", "/categories/"+testCategoryID, "")
		assertStatus(t, rec, http.StatusNotFound)
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_NOT_FOUND")
	})

	t.Run("returns 400 on invalid id", func(t *testing.T) {
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(&mockCategoryService{})), "GET", "/categories/x", "")
		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestCategoryHandler_UpdateCategory(t *testing.T) {
	t.Run("detaches parent with empty id", func(t *testing.T) {
		var got services.CategoryUpdateFields
		svc := &mockCategoryService{
			updateCategoryFn: func(_ context.Context, _, _ string, fields services.CategoryUpdateFields) (*models.Category, error) {
				got = fields
				return &models.Category{}, nil
			},
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "PUT", "/categories/"+testCategoryID, `{"parent_id":"","sort_order":3}`)

		assertStatus(t, rec, http.StatusOK)
		if got.ParentID == nil || *got.ParentID != "" {
			t.Errorf("expected empty parent id, got %v", got.ParentID)
		}
		if got.SortOrder == nil || *got.SortOrder != 3 {
			t.Errorf("expected sort order 3, got %v", got.SortOrder)
		}
	})

	t.Run("rejects malformed parent", func(t *testing.T) {
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(&mockCategoryService{})), "PUT", "/categories/"+testCategoryID, `{"parent_id":"nope"}`)
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("returns 400 on self parent", func(t *testing.T) {
		svc := &mockCategoryService{
			updateCategoryFn: func(context.Context, string, string, services.CategoryUpdateFields) (*models.Category, error) {
				return nil, apperrors.ErrSelfParentCategory
			},
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "PUT", "/categories/"+testCategoryID, `{"parent_id":"`+testCategoryID+`"}`)
		assertStatus(t, rec, http.StatusBadRequest)
		assertErrorCode(t, parseJSON(t, rec), "SELF_PARENT_CATEGORY")
	})
}

func TestCategoryHandler_DeleteCategory(t *testing.T) {
	t.Run("returns 200", func(t *testing.T) {
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(&mockCategoryService{})), "DELETE", "/categories/"+testCategoryID, "")
		assertStatus(t, rec, http.StatusOK)
	})

	t.Run("returns 409 with children", func(t *testing.T) {
		svc := &mockCategoryService{
			deleteCategoryFn: func(context.Context, string, string) error { return apperrors.ErrCategoryHasChildren },
		}
		rec := doRequest(setupCategoryRouter(NewCategoryHandler(svc)), "DELETE", "/categories/"+testCategoryID, "")
		assertStatus(t, rec, http.StatusConflict)
	})
}
