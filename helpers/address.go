package helpers

import "strings"

// NormalizeAddress lowercases and trims an email address for comparison.
func NormalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitEmailAddress splits a normalized address into local part and domain.
// The second return value is empty when the address has no "@".
func SplitEmailAddress(email string) (string, string) {
	email = NormalizeAddress(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}
