package repository

import (
	"context"

	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
)

// CourseRepository reads course billing configuration owned by the catalog.
type CourseRepository interface {
	GetPricing(ctx context.Context, courseID int64) (*model.CoursePricing, error)
}
