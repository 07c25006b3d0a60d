package insurance

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"hatch-backend/internal/database"
)

var ErrInvalidDetails = errors.New("invalid insurance details")

const DateLayout = "2006-01-02"

// NormalizeDetails trims every field, drops rows that are entirely blank and
// checks what is left: dates must be YYYY-MM-DD and amounts decimal numbers.
// Empty fields are allowed on rows that have other content.
func NormalizeDetails(details database.InsuranceDetails) (database.InsuranceDetails, error) {
	out := database.InsuranceDetails{
		MedicalBills: []database.MedicalBill{},
		Transcripts:  []database.Transcript{},
	}

	for i, bill := range details.MedicalBills {
		bill = database.MedicalBill{
			Date:        strings.TrimSpace(bill.Date),
			Amount:      strings.TrimSpace(bill.Amount),
			Description: strings.TrimSpace(bill.Description),
		}
		if bill.Date == "" && bill.Amount == "" && bill.Description == "" {
			continue
		}
		if err := validateDate(bill.Date); err != nil {
			return out, fmt.Errorf("%w: medical bill %d: %w", ErrInvalidDetails, i, err)
		}
		if err := validateAmount(bill.Amount); err != nil {
			return out, fmt.Errorf("%w: medical bill %d: %w", ErrInvalidDetails, i, err)
		}
		out.MedicalBills = append(out.MedicalBills, bill)
	}

	for i, transcript := range details.Transcripts {
		transcript = database.Transcript{
			Date:  strings.TrimSpace(transcript.Date),
			Notes: strings.TrimSpace(transcript.Notes),
		}
		if transcript.Date == "" && transcript.Notes == "" {
			continue
		}
		if err := validateDate(transcript.Date); err != nil {
			return out, fmt.Errorf("%w: transcript %d: %w", ErrInvalidDetails, i, err)
		}
		out.Transcripts = append(out.Transcripts, transcript)
	}

	return out, nil
}

func validateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date '%s', expected YYYY-MM-DD", date)
	}
	return nil
}

func validateAmount(amount string) error {
	if amount == "" {
		return nil
	}
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("invalid amount '%s', expected a decimal number", amount)
	}
	return nil
}
