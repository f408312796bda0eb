package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	MaxUsernameLength       = 50
	MaxConditionLength      = 50
	MaxGradeLength          = 10
	MaxGradingCompanyLength = 20
	MaxNotesLength          = 1024
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

var (
	gradeRegex          = regexp.MustCompile(`^[0-9]{1,2}(\.5)?$`)
	gradingCompanyRegex = regexp.MustCompile(`^[A-Za-z]{2,10}$`)
)

// ValidateGrade checks that a grade reads like a grading-scale number, e.g.
// "10", "9.5". Empty is allowed; presence is the caller's concern.
func ValidateGrade(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if !gradeRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Grade ('%s') is not in the expected format (e.g. 10, 9.5)", ErrValidationFailed, s)
	}
	return nil
}

// ValidateGradingCompany checks the company reads like a grader abbreviation
// (PSA, BGS, CGC). Empty is allowed.
func ValidateGradingCompany(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxGradingCompanyLength, "Grading Company"); err != nil {
		return err
	}
	if !gradingCompanyRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Grading Company ('%s') is not in the expected format (letters only)", ErrValidationFailed, s)
	}
	return nil
}
