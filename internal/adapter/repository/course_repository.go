package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"gorm.io/gorm"
)

type courseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) repository.CourseRepository {
	return &courseRepository{db: db}
}

// GetPricing returns nil when the course has no billing configuration.
func (r *courseRepository) GetPricing(ctx context.Context, courseID int64) (*model.CoursePricing, error) {
	var pricing model.CoursePricing
	err := r.db.WithContext(ctx).Where("course_id = ?", courseID).First(&pricing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pricing of course %d: %w", courseID, err)
	}
	return &pricing, nil
}
