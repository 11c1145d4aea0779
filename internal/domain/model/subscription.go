package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProfileIDImmutable is returned when a subscription that already has a
// processor profile is re-pointed at a different one.
var ErrProfileIDImmutable = errors.New("subscription profile id cannot be changed once set")

// Subscription is the local record of a processor-side subscription created
// for one recurring order item.
type Subscription struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64     `gorm:"index;not null" json:"order_id"`
	OrderItemID int64     `gorm:"uniqueIndex;not null" json:"order_item_id"`
	StudentID   uuid.UUID `gorm:"type:uuid;not null;index" json:"student_id"`
	CourseID    int64     `gorm:"index;not null" json:"course_id"`

	// ProfileID is the processor subscription id.
	ProfileID  *string `gorm:"size:100;uniqueIndex" json:"profile_id,omitempty"`
	PlanID     string  `gorm:"size:255" json:"plan_id,omitempty"`
	CustomerID string  `gorm:"column:processor_customer_id;size:100" json:"customer_id,omitempty"`

	BillingInterval      string          `gorm:"size:20;not null" json:"billing_interval"`
	BillingIntervalCount int             `gorm:"not null;default:1" json:"billing_interval_count"`
	Currency             string          `gorm:"size:3;not null" json:"currency"`
	InitialAmount        decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"initial_amount"`
	RecurringAmount      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"recurring_amount"`

	Installment      bool `gorm:"not null;default:false" json:"installment"`
	InstallmentCount int  `gorm:"not null;default:0" json:"installment_count"`
	BillTimes        int  `gorm:"not null;default:0" json:"bill_times"`

	Status            SubscriptionStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CancelAtPeriodEnd bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	PeriodStart       *time.Time         `json:"period_start,omitempty"`
	PeriodEnd         *time.Time         `json:"period_end,omitempty"`
	CanceledAt        *time.Time         `json:"canceled_at,omitempty"`
	Note              string             `gorm:"type:text" json:"note,omitempty"`
	CreatedAt         time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// SetProfileID binds the processor subscription id. Rebinding to the same id
// is a no-op; rebinding to a different one fails.
func (s *Subscription) SetProfileID(id string) error {
	if s.ProfileID != nil && *s.ProfileID != "" {
		if *s.ProfileID == id {
			return nil
		}
		return ErrProfileIDImmutable
	}
	s.ProfileID = &id
	return nil
}

func (s *Subscription) HasProfile() bool {
	return s.ProfileID != nil && *s.ProfileID != ""
}

// InstallmentsDone reports whether every installment has been billed.
func (s *Subscription) InstallmentsDone() bool {
	return s.Installment && s.InstallmentCount > 0 && s.BillTimes >= s.InstallmentCount
}
