package registry

import (
	"context"
	"sort"
	"sync"

	"civigate/internal/domain"
	"civigate/pkg/platform/sentinel"
)

// MemoryStore keeps service records in-process. It favors clarity over
// performance and backs single-node deployments and unit tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byName map[string]domain.RegisteredService
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byName: make(map[string]domain.RegisteredService)}
}

func (s *MemoryStore) Create(_ context.Context, svc domain.RegisteredService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[svc.Name]; exists {
		return sentinel.ErrConflict
	}
	s.byName[svc.Name] = clone(svc)
	return nil
}

func (s *MemoryStore) GetByName(_ context.Context, name string) (domain.RegisteredService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if svc, ok := s.byName[name]; ok {
		return clone(svc), nil
	}
	return domain.RegisteredService{}, sentinel.ErrNotFound
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (domain.RegisteredService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.byName {
		if svc.ID == id {
			return clone(svc), nil
		}
	}
	return domain.RegisteredService{}, sentinel.ErrNotFound
}

func (s *MemoryStore) List(_ context.Context) ([]domain.RegisteredService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]domain.RegisteredService, 0, len(s.byName))
	for _, svc := range s.byName {
		services = append(services, clone(svc))
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status domain.ServiceStatus) ([]domain.RegisteredService, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, svc := range all {
		if svc.Status == status {
			filtered = append(filtered, svc)
		}
	}
	return filtered, nil
}

func (s *MemoryStore) Update(_ context.Context, svc domain.RegisteredService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[svc.Name]; !ok {
		return sentinel.ErrNotFound
	}
	s.byName[svc.Name] = clone(svc)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byName, name)
	return nil
}

// clone keeps callers from sharing slice backing arrays with the store.
func clone(svc domain.RegisteredService) domain.RegisteredService {
	svc.Tags = append([]string{}, svc.Tags...)
	svc.RequiredRoles = append([]string{}, svc.RequiredRoles...)
	return svc
}
