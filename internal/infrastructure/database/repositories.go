package database

import (
	"github.com/wekeepgrowing/semo-course-billing/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/semo-course-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Order           domainRepo.OrderRepository
	Subscription    domainRepo.SubscriptionRepository
	CustomerMapping domainRepo.CustomerMappingRepository
	Course          domainRepo.CourseRepository
	Webhook         domainRepo.WebhookRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Order:           repository.NewOrderRepository(db, logger),
		Subscription:    repository.NewSubscriptionRepository(db, logger),
		CustomerMapping: repository.NewCustomerMappingRepository(db),
		Course:          repository.NewCourseRepository(db),
		Webhook:         repository.NewWebhookRepository(db, logger),
	}
}
