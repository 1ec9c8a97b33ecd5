package dispatch

import (
	"net/mail"
	"regexp"
)

// phoneRegex matches E.164 numbers: leading +, 7 to 15 digits, no
// leading zero.
var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidPhone reports whether s is a valid E.164 phone number
func ValidPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

// ValidEmail reports whether s is a deliverable email address
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
