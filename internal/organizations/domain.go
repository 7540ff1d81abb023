package organizations

import (
	"regexp"
	"strings"

	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
)

// exactly one "@", a non-empty local part and a dotted domain
var emailPattern = regexp.MustCompile(`^[^\s@]+@([^\s@]+\.[^\s@]+)$`)

// NormalizeEmail lowercases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the lowercase domain of email or a validation error
// when the address is malformed.
func ExtractDomain(email string) (string, error) {
	match := emailPattern.FindStringSubmatch(NormalizeEmail(email))
	if match == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
	}
	return match[1], nil
}

// ValidEmail reports whether email passes the strict single-@ shape check.
func ValidEmail(email string) bool {
	_, err := ExtractDomain(email)
	return err == nil
}

var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// NormalizeDomain lowercases a bare domain and rejects anything that is not
// a dotted host name.
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if !domainPattern.MatchString(d) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid domain")
	}
	return d, nil
}
