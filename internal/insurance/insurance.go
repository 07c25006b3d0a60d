package insurance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"hatch-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidPlan   = errors.New("plan does not belong to company")
)

type Update struct {
	CompanyId uuid.UUID
	PlanId    uuid.UUID
	MemberId  string
	GroupId   string
	Details   *database.InsuranceDetails
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// UpdateUserInsurance replaces the user's insurance with the given plan. A
// user has at most one insurance record.
func UpdateUserInsurance(ctx context.Context, db *gorm.DB, userId uuid.UUID, update Update) error {
	if userId == uuid.Nil || update.CompanyId == uuid.Nil || update.PlanId == uuid.Nil {
		return ErrMissingFields
	}

	plan, err := database.GetInsurancePlan(ctx, db, update.PlanId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: plan '%s' does not exist", ErrInvalidPlan, update.PlanId)
		}
		return err
	}
	if plan.CompanyId != update.CompanyId {
		return fmt.Errorf("%w: plan '%s' is not offered by company '%s'", ErrInvalidPlan, update.PlanId, update.CompanyId)
	}

	var details database.InsuranceDetails
	if update.Details != nil {
		details = *update.Details
	}
	details, err = NormalizeDetails(details)
	if err != nil {
		return err
	}

	if err := database.ReplaceUserInsurance(ctx, db, database.UserInsurance{
		UserId:   userId,
		PlanId:   plan.Id,
		MemberId: nullString(update.MemberId),
		GroupId:  nullString(update.GroupId),
		Details:  datatypes.NewJSONType(details),
	}); err != nil {
		return err
	}

	slog.Info("updated user insurance", "user_id", userId, "plan_id", plan.Id, "medical_bills", len(details.MedicalBills), "transcripts", len(details.Transcripts))
	return nil
}
