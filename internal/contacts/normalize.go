// Package contacts implements the contact exchange pipeline: parsing
// uploaded contact files, deduplicated bulk import into the CRM, and
// filtered export back to CSV or XLSX.
package contacts

import "strings"

// KeyKind tags a duplicate-detection key as phone or email.
// Collisions are strictly same-kind.
type KeyKind string

const (
	KindPhone KeyKind = "phone"
	KindEmail KeyKind = "email"
)

// Key is a normalized (kind, value) pair used for duplicate detection.
type Key struct {
	Kind  KeyKind
	Value string
}

// NormalizePhone reduces a raw phone to digits and canonicalizes the
// Russian country prefix: 8XXXXXXXXXX becomes 7XXXXXXXXXX, a bare
// 10-digit number gets a leading 7. Anything else is left as-is,
// including the empty string.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	digits := b.String()

	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	if len(digits) == 10 {
		digits = "7" + digits
	}
	return digits
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// normTitle canonicalizes a company title for index lookups.
func normTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// trimmed returns a copy of the record with every field whitespace-trimmed.
func (r Record) trimmed() Record {
	return Record{
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Phone:     strings.TrimSpace(r.Phone),
		Email:     strings.TrimSpace(r.Email),
		Company:   strings.TrimSpace(r.Company),
	}
}

// Keys returns the record's duplicate-detection keys. Empty normalized
// values produce no key, so the result has zero, one or two entries.
func (r Record) Keys() []Key {
	var keys []Key
	if np := NormalizePhone(r.Phone); np != "" {
		keys = append(keys, Key{Kind: KindPhone, Value: np})
	}
	if ne := NormalizeEmail(r.Email); ne != "" {
		keys = append(keys, Key{Kind: KindEmail, Value: ne})
	}
	return keys
}
