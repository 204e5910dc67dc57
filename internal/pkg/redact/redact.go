// Package redact masks personal data before it reaches the logs.
package redact

import "strings"

// Email masks the local part of an address.
// "amelia.earhart@example.com" becomes "am***@example.com"; local parts of
// two characters or fewer are fully masked. Anything that is not a single
// local@domain pair becomes "***@***".
func Email(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// Emails masks each address in addrs.
func Emails(addrs []string) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = Email(a)
	}
	return out
}
