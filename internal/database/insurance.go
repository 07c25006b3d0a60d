package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func ListInsuranceCompanies(ctx context.Context, txn *gorm.DB) ([]InsuranceCompany, error) {
	var companies []InsuranceCompany
	if err := txn.WithContext(ctx).Order("name ASC").Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("error listing insurance companies: %w", err)
	}
	return companies, nil
}

func ListInsurancePlans(ctx context.Context, txn *gorm.DB, companyId uuid.UUID) ([]InsurancePlan, error) {
	var plans []InsurancePlan
	if err := txn.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("name ASC").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("error listing insurance plans: %w", err)
	}
	return plans, nil
}

func GetInsurancePlan(ctx context.Context, txn *gorm.DB, planId uuid.UUID) (InsurancePlan, error) {
	var plan InsurancePlan
	if err := txn.WithContext(ctx).First(&plan, "id = ?", planId).Error; err != nil {
		return InsurancePlan{}, notFound(err, "error getting insurance plan %v", planId)
	}
	return plan, nil
}

// UserInsuranceRecord is a user's insurance joined with its plan and company.
type UserInsuranceRecord struct {
	CompanyId   uuid.UUID
	CompanyName string
	PlanId      uuid.UUID
	PlanName    string
	PlanType    string
	MemberId    sql.NullString
	GroupId     sql.NullString
	Details     datatypes.JSONType[InsuranceDetails]
}

func GetUserInsurance(ctx context.Context, txn *gorm.DB, userId uuid.UUID) ([]UserInsuranceRecord, error) {
	var records []UserInsuranceRecord
	if err := txn.WithContext(ctx).
		Model(&UserInsurance{}).
		Select(`insurance_companies.id AS company_id,
			insurance_companies.name AS company_name,
			insurance_plans.id AS plan_id,
			insurance_plans.name AS plan_name,
			insurance_plans.type AS plan_type,
			user_insurances.member_id AS member_id,
			user_insurances.group_id AS group_id,
			user_insurances.details_json AS details`).
		Joins("JOIN insurance_plans ON insurance_plans.id = user_insurances.plan_id").
		Joins("JOIN insurance_companies ON insurance_companies.id = insurance_plans.company_id").
		Where("user_insurances.user_id = ?", userId).
		Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("error getting user insurance: %w", err)
	}
	return records, nil
}

// ReplaceUserInsurance deletes any insurance the user has and stores the new
// one in its place.
func ReplaceUserInsurance(ctx context.Context, db *gorm.DB, insurance UserInsurance) error {
	if insurance.CreatedAt.IsZero() {
		insurance.CreatedAt = now()
	}
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Where("user_id = ?", insurance.UserId).Delete(&UserInsurance{}).Error; err != nil {
			return fmt.Errorf("error deleting existing insurance: %w", err)
		}
		if err := txn.Create(&insurance).Error; err != nil {
			return fmt.Errorf("error saving insurance: %w", err)
		}
		return nil
	})
}

// EnsureInsurancePlan creates the company and plan if they don't already
// exist, matching on names.
func EnsureInsurancePlan(ctx context.Context, db *gorm.DB, companyName, planName, planType string) (InsurancePlan, error) {
	var plan InsurancePlan
	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var company InsuranceCompany
		if err := txn.Where(InsuranceCompany{Name: companyName}).
			Attrs(InsuranceCompany{Id: uuid.New(), CreatedAt: now()}).
			FirstOrCreate(&company).Error; err != nil {
			return fmt.Errorf("error creating insurance company %q: %w", companyName, err)
		}

		err := txn.Where("company_id = ? AND name = ?", company.Id, planName).First(&plan).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("error querying insurance plan %q: %w", planName, err)
		}

		plan = InsurancePlan{Id: uuid.New(), CompanyId: company.Id, Name: planName, Type: planType, CreatedAt: now()}
		if err := txn.Create(&plan).Error; err != nil {
			return fmt.Errorf("error creating insurance plan %q: %w", planName, err)
		}
		return nil
	})
	return plan, err
}
