package model

import (
	"time"

	"github.com/google/uuid"
)

// CustomerMapping links a student to their processor customer id.
type CustomerMapping struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProcessorCustomerID string    `gorm:"column:processor_customer_id;unique;not null;size:100" json:"processor_customer_id"`
	StudentID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"student_id"`
	CustomerEmail       string    `gorm:"size:255" json:"customer_email"`
	CreatedAt           time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt           time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CustomerMapping) TableName() string {
	return "customer_mappings"
}
