package models

import (
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account is a money container. Transactions against an account are always
// stored in the account's currency.
type Account struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description"`
	Currency    string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Balance     decimal.Decimal `gorm:"type:decimal(15,4);not null;default:0" json:"balance" swaggertype:"string"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`

	// Relationships
	Transactions []Transaction `gorm:"foreignKey:AccountID" json:"transactions,omitempty"`
}

// BeforeSave normalizes the currency code.
func (a *Account) BeforeSave(tx *gorm.DB) error {
	a.Currency = strings.ToUpper(a.Currency)
	return nil
}
