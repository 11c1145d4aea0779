package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type customerMappingRepository struct {
	db *gorm.DB
}

func NewCustomerMappingRepository(db *gorm.DB) repository.CustomerMappingRepository {
	return &customerMappingRepository{
		db: db,
	}
}

// Save inserts the mapping unless the student already has one, and returns
// whichever mapping is stored. Concurrent checkouts of the same student end
// up on the same processor customer.
func (r *customerMappingRepository) Save(ctx context.Context, mapping *model.CustomerMapping) (*model.CustomerMapping, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}},
			DoNothing: true,
		}).
		Create(mapping)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return mapping, nil
	}

	stored, err := r.GetByStudentID(ctx, mapping.StudentID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("customer mapping conflict without a stored row")
	}
	return stored, nil
}

func (r *customerMappingRepository) GetByStudentID(ctx context.Context, studentID uuid.UUID) (*model.CustomerMapping, error) {
	var mapping model.CustomerMapping
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}
