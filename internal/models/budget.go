package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AmountType selects how a budget's monthly allocation is derived.
type AmountType string

const (
	// AmountTypeFixed allocates AmountValue every month.
	AmountTypeFixed AmountType = "fixed"
	// AmountTypePercentage allocates AmountValue percent of the previous month's income.
	AmountTypePercentage AmountType = "percentage"
)

// MaxBudgetNameLength bounds Budget.Name.
const MaxBudgetNameLength = 100

// Budget tracks spending across a set of expense categories.
type Budget struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	AmountType  AmountType      `gorm:"size:20;not null" json:"amount_type"`
	AmountValue decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"amount_value" swaggertype:"string"`
	Active      bool            `gorm:"not null;default:true" json:"active"`

	// Relationships
	Categories  []Category         `gorm:"many2many:budget_categories;" json:"categories"`
	Allocations []BudgetAllocation `gorm:"foreignKey:BudgetID;constraint:OnDelete:CASCADE" json:"allocations,omitempty"`
}

// CategoryIDs returns the ids of the attached categories.
func (b *Budget) CategoryIDs() []string {
	ids := make([]string, 0, len(b.Categories))
	for _, c := range b.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// BudgetAllocation is the allocated amount for one budget in one period,
// frozen at the time it was computed. (BudgetID, Period) is unique.
type BudgetAllocation struct {
	ID        string          `gorm:"type:uuid;primaryKey" json:"id"`
	BudgetID  string          `gorm:"type:uuid;not null;uniqueIndex:idx_budget_allocations_budget_period" json:"budget_id"`
	Period    time.Time       `gorm:"type:date;not null;uniqueIndex:idx_budget_allocations_budget_period" json:"period"`
	Amount    decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"amount" swaggertype:"string"`
	CreatedAt time.Time       `json:"created_at"`
}

// BeforeCreate assigns a UUIDv7 when the id is empty.
func (a *BudgetAllocation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}
