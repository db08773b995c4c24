package util

import (
	"fmt"
	"regexp"
)

var (
	unsignedRe = regexp.MustCompile(`^[0-9]+$`)
	decimalRe  = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// ValidationError reports a malformed request value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// CheckUnsigned reports whether s is a plain non-negative integer (no sign,
// no exponent, no whitespace).
func CheckUnsigned(s string) bool {
	return unsignedRe.MatchString(s)
}

// CheckDecimal reports whether s is a plain non-negative decimal number.
func CheckDecimal(s string) bool {
	return decimalRe.MatchString(s)
}
