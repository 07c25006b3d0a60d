package migration_1

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserInsurance struct {
	DetailsJson datatypes.JSON `gorm:"column:details_json"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&UserInsurance{}, "details_json"); err != nil {
		return fmt.Errorf("error adding details_json column: %w", err)
	}

	if err := db.Model(&UserInsurance{}).
		Where("details_json IS NULL").
		Update("details_json", datatypes.JSON(`{"medicalBills":[],"transcripts":[]}`)).Error; err != nil {
		return fmt.Errorf("error setting default value for details_json: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&UserInsurance{}, "details_json"); err != nil {
		return fmt.Errorf("error dropping details_json column: %w", err)
	}

	return nil
}
