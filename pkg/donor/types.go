// Package donor defines the donor record consumed by the scoring engine, its
// calendar-date type, boundary validation, JSON I/O and a seeded fixture generator.
package donor

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPredictedPotential is used when a record carries no predicted potential.
const DefaultPredictedPotential = 50

// Status is the donor lifecycle status. Only a secondary signal for scoring.
type Status string

const (
	StatusNew      Status = "new"
	StatusActive   Status = "active"
	StatusLapsed   Status = "lapsed"
	StatusMajor    Status = "major"
	StatusProspect Status = "prospect"
)

// Record is a donor as supplied by the data source. Records are passed by value
// and never mutated by the engine.
type Record struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	TotalLifetimeGiving decimal.Decimal  `json:"total_lifetime_giving"`
	PredictedPotential  *int             `json:"predicted_potential,omitempty"` // percent, 0-100
	AverageGift         *decimal.Decimal `json:"average_gift,omitempty"`
	GiftCount           int              `json:"gift_count"`
	LastGiftDate        *Date            `json:"last_gift_date,omitempty"` // nil: never gave
	EngagementScore     float64          `json:"engagement_score"`         // 0-100
	Status              Status           `json:"status"`
	Location            string           `json:"location"`
	GivingOverview      *GivingOverview  `json:"giving_overview,omitempty"`
}

// GivingOverview holds aggregate giving figures from an upstream CRM.
type GivingOverview struct {
	// TotalRaised overrides TotalLifetimeGiving when present.
	TotalRaised *decimal.Decimal `json:"total_raised,omitempty"`
}

// EffectiveTotal returns the giving overview total when present, else the
// lifetime giving total.
func (r Record) EffectiveTotal() decimal.Decimal {
	if r.GivingOverview != nil && r.GivingOverview.TotalRaised != nil {
		return *r.GivingOverview.TotalRaised
	}
	return r.TotalLifetimeGiving
}

// EffectivePotential returns the predicted potential or DefaultPredictedPotential.
func (r Record) EffectivePotential() int {
	if r.PredictedPotential == nil {
		return DefaultPredictedPotential
	}
	return *r.PredictedPotential
}

// EffectiveAverageGift returns the explicit average gift, or lifetime giving
// divided by gift count, or fallback when neither is available.
func (r Record) EffectiveAverageGift(fallback decimal.Decimal) decimal.Decimal {
	if r.AverageGift != nil {
		return *r.AverageGift
	}
	if r.GiftCount > 0 {
		return r.TotalLifetimeGiving.Div(decimal.NewFromInt(int64(r.GiftCount)))
	}
	return fallback
}

// DaysSinceLastGift returns the number of calendar days between the last gift
// and now. ok is false when the donor has never given.
func (r Record) DaysSinceLastGift(now time.Time) (days int, ok bool) {
	if r.LastGiftDate == nil || r.LastGiftDate.IsZero() {
		return 0, false
	}
	return r.LastGiftDate.DaysUntil(DateOf(now)), true
}

// ApplyGift returns a copy of r with a received gift folded into its totals.
func (r Record) ApplyGift(amount decimal.Decimal, on Date) Record {
	out := r
	out.TotalLifetimeGiving = r.TotalLifetimeGiving.Add(amount)
	out.GiftCount = r.GiftCount + 1

	if r.GivingOverview != nil {
		gv := *r.GivingOverview
		if gv.TotalRaised != nil {
			raised := gv.TotalRaised.Add(amount)
			gv.TotalRaised = &raised
		}
		out.GivingOverview = &gv
	}

	if r.AverageGift != nil {
		avg := out.TotalLifetimeGiving.Div(decimal.NewFromInt(int64(out.GiftCount)))
		out.AverageGift = &avg
	}

	if r.LastGiftDate == nil || on.After(*r.LastGiftDate) {
		d := on
		out.LastGiftDate = &d
	}

	if r.Status == StatusLapsed {
		out.Status = StatusActive
	}
	return out
}

// FieldError describes a single invalid field on a record.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks the record against the engine's input contract. All
// violations are returned joined.
func (r Record) Validate(now time.Time) error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, &FieldError{Field: field, Reason: reason})
	}

	if r.ID == "" {
		add("id", "is required")
	}
	if r.TotalLifetimeGiving.IsNegative() {
		add("total_lifetime_giving", "must not be negative")
	}
	if r.PredictedPotential != nil && (*r.PredictedPotential < 0 || *r.PredictedPotential > 100) {
		add("predicted_potential", fmt.Sprintf("%d is outside [0,100]", *r.PredictedPotential))
	}
	if r.AverageGift != nil && r.AverageGift.IsNegative() {
		add("average_gift", "must not be negative")
	}
	if r.GiftCount < 0 {
		add("gift_count", "must not be negative")
	}
	if r.EngagementScore < 0 || r.EngagementScore > 100 {
		add("engagement_score", fmt.Sprintf("%g is outside [0,100]", r.EngagementScore))
	}
	if r.LastGiftDate != nil && r.LastGiftDate.After(DateOf(now)) {
		add("last_gift_date", fmt.Sprintf("%s is in the future", r.LastGiftDate))
	}
	if r.GivingOverview != nil && r.GivingOverview.TotalRaised != nil && r.GivingOverview.TotalRaised.IsNegative() {
		add("giving_overview.total_raised", "must not be negative")
	}

	return errors.Join(errs...)
}
