package enrich

import (
	"regexp"
	"strings"
)

var (
	embeddedDate = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	longNumber   = regexp.MustCompile(`#?\d{4,}`)
	storeNumber  = regexp.MustCompile(`STORE\s*\d+`)
	shortStoreNo = regexp.MustCompile(`#\s*\d+`)
)

// CleanDescription normalizes a raw bank description: upper-case, strip
// embedded dates, long numeric identifiers and store-number tokens,
// collapse whitespace. Pure function; identity-level canonicalization
// lives in models.Fingerprint, not here.
func CleanDescription(raw string) string {
	val := strings.ToUpper(raw)
	val = embeddedDate.ReplaceAllString(val, "")
	val = storeNumber.ReplaceAllString(val, "")
	val = longNumber.ReplaceAllString(val, "")
	val = shortStoreNo.ReplaceAllString(val, "")
	return strings.Join(strings.Fields(val), " ")
}
