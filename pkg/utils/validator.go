package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// ValidateInvoiceID checks that an invoice id is usable as a stable key
func ValidateInvoiceID(id string) error {
	if id == "" {
		return fmt.Errorf("invoice id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("invoice id exceeds 128 characters")
	}
	return nil
}

// ValidateConcept checks that the invoice concept carries usable text
func ValidateConcept(concept string) error {
	if strings.TrimSpace(concept) == "" {
		return fmt.Errorf("invoice concept is required")
	}
	return nil
}

// ValidateIssueDate rejects zero and far-future issue dates
func ValidateIssueDate(d time.Time) error {
	if d.IsZero() {
		return fmt.Errorf("issue date is required")
	}
	if d.After(time.Now().AddDate(1, 0, 0)) {
		return fmt.Errorf("issue date is more than a year in the future")
	}
	return nil
}

// SanitizeString removes control characters from free-text input
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
