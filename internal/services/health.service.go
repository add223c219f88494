package services

import (
	"context"

	"github.com/inmobium/crm-messaging/pkg/pg"
)

type HealthService struct {
	db *pg.DB
}

func NewHealthService(db *pg.DB) *HealthService {
	return &HealthService{db: db}
}

// Get pings the read connection so the health endpoint reflects database
// reachability, not just process liveness.
func (s *HealthService) Get() error {
	sqlDB, err := s.db.Read(context.Background()).DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
