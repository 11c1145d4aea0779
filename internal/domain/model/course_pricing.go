package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoursePricing holds the billing configuration of a course.
type CoursePricing struct {
	CourseID             int64           `gorm:"primaryKey" json:"course_id"`
	Title                string          `gorm:"size:255;not null" json:"title"`
	Recurring            bool            `gorm:"not null;default:false" json:"recurring"`
	BillingInterval      string          `gorm:"size:20" json:"billing_interval"`
	BillingIntervalCount int             `gorm:"not null;default:1" json:"billing_interval_count"`
	InstallmentCount     int             `gorm:"not null;default:0" json:"installment_count"`
	RecurringAmount      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"recurring_amount"`
	TrialDays            int             `gorm:"not null;default:0" json:"trial_days"`
	UpdatedAt            time.Time       `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CoursePricing) TableName() string {
	return "course_pricing"
}

func (c *CoursePricing) IsInstallment() bool {
	return c.InstallmentCount > 0
}
