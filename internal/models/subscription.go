package models

import (
	"time"

	"github.com/shopspring/decimal"

	"pennywise/internal/period"
)

// IntervalUnit is the recurrence step of a subscription.
type IntervalUnit string

const (
	IntervalDaily   IntervalUnit = "daily"
	IntervalWeekly  IntervalUnit = "weekly"
	IntervalMonthly IntervalUnit = "monthly"
	IntervalYearly  IntervalUnit = "yearly"
)

// Valid reports whether u is a supported interval.
func (u IntervalUnit) Valid() bool {
	switch u {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// Advance returns the date one interval after from. Monthly and yearly steps
// land on anchorDay, clamped to the last day of shorter months, so a
// subscription starting on the 31st runs on Feb 28 and then Mar 31 again.
func (u IntervalUnit) Advance(from time.Time, anchorDay int) time.Time {
	from = period.Date(from)
	switch u {
	case IntervalDaily:
		return from.AddDate(0, 0, 1)
	case IntervalWeekly:
		return from.AddDate(0, 0, 7)
	case IntervalYearly:
		return addMonthsClamped(from, 12, anchorDay)
	default:
		return addMonthsClamped(from, 1, anchorDay)
	}
}

func addMonthsClamped(from time.Time, months, anchorDay int) time.Time {
	first := time.Date(from.Year(), from.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := anchorDay
	if last := period.DaysIn(first); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Subscription is a recurring expense that generates a transaction every
// interval. A subscription that never ran has LastRunOn == nil and
// NextRunOn == StartsOn.
type Subscription struct {
	Base
	UserID        string          `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID     string          `gorm:"type:uuid;not null" json:"account_id"`
	CategoryID    string          `gorm:"type:uuid;not null" json:"category_id"`
	Vendor        string          `gorm:"size:255;not null" json:"vendor"`
	Description   string          `json:"description"`
	InputAmount   decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"input_amount" swaggertype:"string"`
	InputCurrency string          `gorm:"size:3;not null" json:"input_currency"`
	StartsOn      time.Time       `gorm:"type:date;not null" json:"starts_on"`
	NextRunOn     time.Time       `gorm:"type:date;not null;index" json:"next_run_on"`
	LastRunOn     *time.Time      `gorm:"type:date" json:"last_run_on,omitempty"`
	IntervalUnit  IntervalUnit    `gorm:"size:20;not null" json:"interval_unit"`
	Active        bool            `gorm:"not null;default:true" json:"active"`

	// Relationships
	Account  Account  `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Category Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// MarkProcessed records a run on ranOn and moves NextRunOn forward by one
// interval. If the schedule was behind, it keeps stepping until NextRunOn is
// after ranOn; missed periods are not replayed.
func (s *Subscription) MarkProcessed(ranOn time.Time) {
	ranOn = period.Date(ranOn)
	s.LastRunOn = &ranOn

	anchor := s.StartsOn.Day()
	next := s.IntervalUnit.Advance(s.NextRunOn, anchor)
	for !next.After(ranOn) {
		next = s.IntervalUnit.Advance(next, anchor)
	}
	s.NextRunOn = next
}

// DefaultDescription is used for generated transactions when the
// subscription has no description of its own.
func (s *Subscription) DefaultDescription() string {
	if s.Description != "" {
		return s.Description
	}
	return "Subscription payment for " + s.Vendor
}
