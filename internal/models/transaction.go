package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// TransactionStatus is the optional settlement state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is a dated money movement. InputAmount/InputCurrency are what
// the user entered; Amount is InputAmount × Rate in the account's currency.
// Rate is frozen at creation unless the money fields are edited.
type Transaction struct {
	Base
	UserID          string             `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID       string             `gorm:"type:uuid;not null;index" json:"account_id"`
	CategoryID      *string            `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Type            TransactionType    `gorm:"not null" json:"type"`
	InputAmount     decimal.Decimal    `gorm:"type:decimal(15,4);not null" json:"input_amount" swaggertype:"string"`
	InputCurrency   string             `gorm:"size:3;not null" json:"input_currency"`
	Amount          decimal.Decimal    `gorm:"type:decimal(15,4);not null" json:"amount" swaggertype:"string"`
	Rate            decimal.Decimal    `gorm:"type:decimal(18,8);not null;default:1" json:"rate" swaggertype:"string"`
	RateMissing     bool               `gorm:"not null;default:false" json:"rate_missing"`
	Label           string             `gorm:"size:255" json:"label"`
	Description     string             `json:"description"`
	TransactionDate time.Time          `gorm:"type:date;not null;index" json:"transaction_date"`
	Status          *TransactionStatus `gorm:"size:20" json:"status,omitempty"`

	// Relationships
	Account  Account   `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
