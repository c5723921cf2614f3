package registry

import (
	"context"

	"civigate/internal/domain"
)

// Store is the durable collection of service records. Implementations must
// enforce uniqueness on Name and return sentinel errors so the service layer
// can translate them into domain errors.
type Store interface {
	Create(ctx context.Context, svc domain.RegisteredService) error
	GetByName(ctx context.Context, name string) (domain.RegisteredService, error)
	GetByID(ctx context.Context, id string) (domain.RegisteredService, error)
	List(ctx context.Context) ([]domain.RegisteredService, error)
	ListByStatus(ctx context.Context, status domain.ServiceStatus) ([]domain.RegisteredService, error)
	Update(ctx context.Context, svc domain.RegisteredService) error
	Delete(ctx context.Context, name string) error
}
