package api

import (
	"log/slog"
	"net/http"

	"hatch-backend/internal/ai"
	"hatch-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type BackendService struct {
	db       *gorm.DB
	registry *ai.Registry
}

func NewBackendService(db *gorm.DB, registry *ai.Registry) *BackendService {
	return &BackendService{db: db, registry: registry}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.Health))
	r.Get("/models", RestHandler(s.ListModels))
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, CodedError(http.StatusServiceUnavailable, err)
	}
	if err := sqlDB.PingContext(r.Context()); err != nil {
		slog.Error("database ping failed", "error", err)
		return nil, CodedErrorf(http.StatusServiceUnavailable, "database unavailable")
	}
	return nil, nil
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	return api.ModelsResponse{
		Models:         convertModels(s.registry.Models()),
		DefaultModelId: s.registry.DefaultModelId(),
	}, nil
}
