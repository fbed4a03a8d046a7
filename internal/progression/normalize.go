package progression

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NormalizeLabel trims surrounding whitespace and applies Unicode NFC
// normalization, so labels that render identically compare equal.
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateName checks that name is a lower_snake_case identifier.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("dimension name %q must match %s", name, namePattern.String())
	}
	return nil
}
