package enrich

import (
	"testing"
	"time"

	"finapp-go-be/models"
)

func newTestRuleset() *Ruleset {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	merchants := []models.MerchantMap{
		{RawDescription: "WHOLE FOODS MKT #2341", StandardizedMerchant: "Whole Foods", CreatedAt: t0},
		{RawDescription: "WHOLE FOODS", StandardizedMerchant: "Whole Foods (generic)", CreatedAt: t0},
		{RawDescription: "SAFEWAY", StandardizedMerchant: "Safeway", CreatedAt: t0},
	}
	categories := []models.CategoryMap{
		{UnmappedDescription: "Whole Foods", SCSCID: "SCSC0034", CreatedAt: t0},
		{UnmappedDescription: "Safeway", SCSCID: "SCSC0034", CreatedAt: t0},
	}
	return NewRuleset(merchants, categories, nil)
}

func TestResolveMerchant_ExactRawMatch(t *testing.T) {
	rs := newTestRuleset()

	got := rs.ResolveMerchant("WHOLE FOODS MKT #2341", CleanDescription("WHOLE FOODS MKT #2341"))
	if got != "Whole Foods" {
		t.Errorf("merchant = %q, want %q", got, "Whole Foods")
	}
}

func TestResolveMerchant_SubstringFallback(t *testing.T) {
	rs := newTestRuleset()

	// No exact raw row for this variant; the cleaned description still
	// contains the WHOLE FOODS pattern.
	got := rs.ResolveMerchant("WHOLE FOODS MKT #9999", CleanDescription("WHOLE FOODS MKT #9999"))
	if got != "Whole Foods (generic)" {
		t.Errorf("merchant = %q, want %q", got, "Whole Foods (generic)")
	}
}

func TestResolveMerchant_FallbackToCleanDescription(t *testing.T) {
	rs := newTestRuleset()

	clean := CleanDescription("MYSTERY VENDOR LLC")
	got := rs.ResolveMerchant("MYSTERY VENDOR LLC", clean)
	if got != clean {
		t.Errorf("merchant = %q, want clean description %q", got, clean)
	}
	if got == "" {
		t.Error("standardized merchant must never be empty for non-empty input")
	}
}

func TestResolveMerchant_LongestPatternWins(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rs := NewRuleset([]models.MerchantMap{
		{RawDescription: "FOODS", StandardizedMerchant: "Short", CreatedAt: t0},
		{RawDescription: "WHOLE FOODS", StandardizedMerchant: "Long", CreatedAt: t0},
	}, nil, nil)

	got := rs.ResolveMerchant("unmatched raw", "WHOLE FOODS MKT")
	if got != "Long" {
		t.Errorf("merchant = %q, want longest pattern %q", got, "Long")
	}
}

func TestResolveMerchant_TieBrokenByEarliestCreated(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)
	rs := NewRuleset([]models.MerchantMap{
		{RawDescription: "ACMEA", StandardizedMerchant: "Later", CreatedAt: late},
		{RawDescription: "ACMEB", StandardizedMerchant: "Earlier", CreatedAt: early},
	}, nil, nil)

	got := rs.ResolveMerchant("x", "ACMEA ACMEB")
	if got != "Earlier" {
		t.Errorf("merchant = %q, want earliest-created %q", got, "Earlier")
	}
}

func TestResolveCategory(t *testing.T) {
	rs := newTestRuleset()

	if got := rs.ResolveCategory("Whole Foods"); got == nil || *got != "SCSC0034" {
		t.Errorf("category = %v, want SCSC0034", got)
	}
	if got := rs.ResolveCategory("Unknown Merchant"); got != nil {
		t.Errorf("category = %v, want nil (uncategorized is a valid terminal state)", *got)
	}
}

func TestApply_WholeFoodsScenario(t *testing.T) {
	rs := newTestRuleset()

	tx := models.Transaction{RawDescription: "WHOLE FOODS MKT #2341", Amount: -42.50}
	rs.Apply(&tx)

	if tx.StandardizedMerchant != "Whole Foods" {
		t.Errorf("standardized merchant = %q, want %q", tx.StandardizedMerchant, "Whole Foods")
	}
	if tx.CategoryID == nil || *tx.CategoryID != "SCSC0034" {
		t.Errorf("category = %v, want SCSC0034", tx.CategoryID)
	}
	if tx.CleanDescription != "WHOLE FOODS MKT" {
		t.Errorf("clean description = %q, want %q", tx.CleanDescription, "WHOLE FOODS MKT")
	}
}

func TestApply_Idempotent(t *testing.T) {
	rs := newTestRuleset()

	tx := models.Transaction{RawDescription: "WHOLE FOODS MKT #2341", Amount: -42.50}
	rs.Apply(&tx)
	merchant, category := tx.StandardizedMerchant, tx.CategoryID

	rs.Apply(&tx)
	if tx.StandardizedMerchant != merchant {
		t.Errorf("second apply changed merchant: %q -> %q", merchant, tx.StandardizedMerchant)
	}
	if (tx.CategoryID == nil) != (category == nil) || (category != nil && *tx.CategoryID != *category) {
		t.Error("second apply changed category")
	}
}

func TestApply_RespectsManualOverride(t *testing.T) {
	rs := newTestRuleset()

	override := "SCSC9999"
	tx := models.Transaction{
		RawDescription:       "WHOLE FOODS MKT #2341",
		StandardizedMerchant: "My Grocer",
		CategoryID:           &override,
		IsManual:             true,
	}
	rs.Apply(&tx)

	if tx.StandardizedMerchant != "My Grocer" || tx.CategoryID == nil || *tx.CategoryID != "SCSC9999" {
		t.Error("apply must not overwrite manual edits")
	}
}

func TestIsExcluded(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	catID := "SCSC0100"
	rs := NewRuleset(nil, nil, []models.ExclusionRule{
		{RuleType: models.RuleExact, Value: "VENMO PAYMENT", CreatedAt: t0},
		{RuleType: models.RulePattern, Value: "TRANSFER", CreatedAt: t0},
		{RuleType: models.RuleCategory, Value: catID, CreatedAt: t0},
	})

	tests := []struct {
		name string
		tx   models.Transaction
		want bool
	}{
		{"exact match", models.Transaction{RawDescription: "venmo payment", CleanDescription: "VENMO PAYMENT"}, true},
		{"pattern match", models.Transaction{RawDescription: "ACH TRANSFER IN", CleanDescription: "ACH TRANSFER IN"}, true},
		{"category match", models.Transaction{RawDescription: "X", CategoryID: &catID}, true},
		{"no match", models.Transaction{RawDescription: "COFFEE SHOP", CleanDescription: "COFFEE SHOP"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rs.IsExcluded(&tt.tx); got != tt.want {
				t.Errorf("IsExcluded = %v, want %v", got, tt.want)
			}
		})
	}
}
