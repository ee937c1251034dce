package helpers

import "strings"

// MaskAddress redacts the local part of an email address for log output.
// "alice@acme.com" becomes "a***@acme.com". Addresses without an "@" are
// fully redacted since we cannot tell which part is sensitive.
func MaskAddress(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}

	local := email[:at]
	domain := email[at:]
	if len(local) == 1 {
		return "*" + domain
	}
	return local[:1] + "***" + domain
}
