package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/model"
)

type CustomerMappingRepository interface {
	// Save stores the mapping unless the student already has one and returns
	// the stored mapping.
	Save(ctx context.Context, mapping *model.CustomerMapping) (*model.CustomerMapping, error)
	GetByStudentID(ctx context.Context, studentID uuid.UUID) (*model.CustomerMapping, error)
}
