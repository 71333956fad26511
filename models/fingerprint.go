package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint derives the deterministic identity key of a transaction
// from its date, amount, raw description and source (the account label,
// which is stable across import channels). The description and source
// are whitespace-collapsed and upper-cased so formatting noise does not
// create spurious duplicates; substantive digits such as store numbers
// are kept, that stripping belongs to enrichment.
func Fingerprint(date time.Time, amount float64, rawDescription, source string) string {
	desc := canonicalize(rawDescription)
	src := canonicalize(source)
	amt := decimal.NewFromFloat(amount).StringFixed(2)

	raw := date.Format("2006-01-02") + "|" + amt + "|" + desc + "|" + src
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func canonicalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
