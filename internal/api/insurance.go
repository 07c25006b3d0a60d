package api

import (
	"errors"
	"log/slog"
	"net/http"

	"hatch-backend/internal/database"
	"hatch-backend/internal/insurance"
	"hatch-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type InsuranceService struct {
	db *gorm.DB
}

func NewInsuranceService(db *gorm.DB) *InsuranceService {
	return &InsuranceService{db: db}
}

func (s *InsuranceService) AddRoutes(r chi.Router) {
	r.Route("/insurance", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetUserInsurance))
		r.Put("/", RestHandler(s.UpdateUserInsurance))
		r.Get("/companies", RestHandler(s.ListCompanies))
		r.Get("/companies/{company_id}/plans", RestHandler(s.ListPlans))
	})
}

func (s *InsuranceService) ListCompanies(r *http.Request) (any, error) {
	companies, err := database.ListInsuranceCompanies(r.Context(), s.db)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertCompanies(companies), nil
}

func (s *InsuranceService) ListPlans(r *http.Request) (any, error) {
	companyId, err := URLParamUUID(r, "company_id")
	if err != nil {
		return nil, err
	}

	plans, err := database.ListInsurancePlans(r.Context(), s.db, companyId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return convertPlans(plans), nil
}

// GetUserInsurance returns the caller's insurance, or null if none is on file.
func (s *InsuranceService) GetUserInsurance(r *http.Request) (any, error) {
	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	records, err := database.GetUserInsurance(r.Context(), s.db, session.User.Id)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	if len(records) == 0 {
		return (*api.UserInsurance)(nil), nil
	}
	current := convertUserInsurance(records[0])
	return &current, nil
}

func (s *InsuranceService) UpdateUserInsurance(r *http.Request) (any, error) {
	req, err := ParseRequest[api.UpdateInsuranceRequest](r)
	if err != nil {
		return nil, err
	}

	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}

	if req.CompanyId == "" || req.PlanId == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "Missing required fields")
	}
	companyId, err := ParseUUID("companyId", req.CompanyId)
	if err != nil {
		return nil, err
	}
	planId, err := ParseUUID("planId", req.PlanId)
	if err != nil {
		return nil, err
	}

	err = insurance.UpdateUserInsurance(r.Context(), s.db, session.User.Id, insurance.Update{
		CompanyId: companyId,
		PlanId:    planId,
		MemberId:  req.MemberId,
		GroupId:   req.GroupId,
		Details:   toDatabaseDetails(req.DetailsJson),
	})
	switch {
	case errors.Is(err, insurance.ErrMissingFields):
		return nil, CodedErrorf(http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, insurance.ErrInvalidPlan), errors.Is(err, insurance.ErrInvalidDetails):
		return nil, CodedError(http.StatusBadRequest, err)
	case err != nil:
		slog.Error("error updating insurance", "user_id", session.User.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "Failed to update insurance")
	}

	records, err := database.GetUserInsurance(r.Context(), s.db, session.User.Id)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	for _, record := range records {
		if record.PlanId == planId {
			return convertUserInsurance(record), nil
		}
	}
	return nil, CodedErrorf(http.StatusInternalServerError, "insurance for plan %v missing after update", planId)
}
