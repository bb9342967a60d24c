package models

// User is the owner of every other resource. Users are provisioned on first
// authenticated request; credentials live with the external identity provider.
type User struct {
	Base
	Email         string         `gorm:"uniqueIndex;not null" json:"email"`
	Name          string         `json:"name"`
	MainCurrency  string         `gorm:"size:3;not null;default:'USD'" json:"main_currency"`
	Accounts      []Account      `gorm:"foreignKey:UserID" json:"accounts,omitempty"`
	Budgets       []Budget       `gorm:"foreignKey:UserID" json:"budgets,omitempty"`
	Categories    []Category     `gorm:"foreignKey:UserID" json:"categories,omitempty"`
	Transactions  []Transaction  `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
	Subscriptions []Subscription `gorm:"foreignKey:UserID" json:"subscriptions,omitempty"`
}
