package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	quarterRegex = regexp.MustCompile(`^FY(\d{2}|\d{4})-?Q[1-4]$`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// MaxRequestedAmount caps a single investment request
var MaxRequestedAmount = decimal.NewFromInt(100_000_000)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateQuarter checks the fiscal quarter label, e.g. FY2027-Q1 or FY26Q3
func ValidateQuarter(quarter string) error {
	if !quarterRegex.MatchString(quarter) {
		return fmt.Errorf("quarter must look like FY2027-Q1 or FY26Q3: %q", quarter)
	}
	return nil
}

// ValidateAmount validates a requested investment amount
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("amount must not be negative: %s", amount.StringFixed(2))
	}

	if amount.GreaterThan(MaxRequestedAmount) {
		return fmt.Errorf("amount exceeds maximum limit: %s", amount.StringFixed(2))
	}

	return nil
}

// SanitizeString trims and removes control characters, keeping tabs and newlines
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
