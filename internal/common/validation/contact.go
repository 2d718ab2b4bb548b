package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// E.164: leading +, up to 15 digits, no leading zero.
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ValidatePhone accepts E.164 numbers only.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(strings.TrimSpace(phone))
}

// ValidateEmails returns an error naming the first bad address in list.
func ValidateEmails(field string, list []string) error {
	for _, addr := range list {
		if !ValidateEmail(addr) {
			return fmt.Errorf("invalid %s email address: %q", field, addr)
		}
	}
	return nil
}
