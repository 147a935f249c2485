package log

import "strings"

const redactedToken = "[REDACTED_TOKEN]"

// RedactToken hides a bearer or refresh token, keeping only whether one was present.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	return redactedToken
}

// RedactEmail keeps the first two characters of the local part and the domain.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:2] + "***" + domain
}
