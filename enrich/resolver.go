package enrich

import (
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"finapp-go-be/models"
)

type merchantRule struct {
	rawPattern   string // as stored, for exact raw matching
	upperPattern string
	merchant     string
	createdAt    time.Time
}

type categoryRule struct {
	upperPattern string
	categoryID   string
	createdAt    time.Time
}

type exclusionRule struct {
	ruleType   string
	upperValue string
	value      string
}

// Ruleset is the full active mapping set, preloaded once per batch.
// Matching is deterministic: longest pattern wins, ties broken by
// earliest creation timestamp.
type Ruleset struct {
	merchantExact map[string]string // raw pattern -> standardized merchant
	merchants     []merchantRule    // sorted for substring fallback
	categoryExact map[string]string // upper pattern -> category id
	categories    []categoryRule
	exclusions    []exclusionRule
}

// LoadRuleset reads all active mapping rows in three queries.
func LoadRuleset(db *gorm.DB) (*Ruleset, error) {
	var merchants []models.MerchantMap
	if err := db.Where("is_active = ?", true).Find(&merchants).Error; err != nil {
		return nil, err
	}
	var categories []models.CategoryMap
	if err := db.Where("is_active = ?", true).Find(&categories).Error; err != nil {
		return nil, err
	}
	var exclusions []models.ExclusionRule
	if err := db.Where("is_active = ?", true).Order("created_at asc").Find(&exclusions).Error; err != nil {
		return nil, err
	}
	return NewRuleset(merchants, categories, exclusions), nil
}

// NewRuleset builds an in-memory ruleset from already-loaded rows.
func NewRuleset(merchants []models.MerchantMap, categories []models.CategoryMap, exclusions []models.ExclusionRule) *Ruleset {
	rs := &Ruleset{
		merchantExact: make(map[string]string, len(merchants)),
		categoryExact: make(map[string]string, len(categories)),
	}
	for _, m := range merchants {
		rs.merchantExact[m.RawDescription] = m.StandardizedMerchant
		rs.merchants = append(rs.merchants, merchantRule{
			rawPattern:   m.RawDescription,
			upperPattern: strings.ToUpper(m.RawDescription),
			merchant:     m.StandardizedMerchant,
			createdAt:    m.CreatedAt,
		})
	}
	sort.SliceStable(rs.merchants, func(i, j int) bool {
		if len(rs.merchants[i].upperPattern) != len(rs.merchants[j].upperPattern) {
			return len(rs.merchants[i].upperPattern) > len(rs.merchants[j].upperPattern)
		}
		return rs.merchants[i].createdAt.Before(rs.merchants[j].createdAt)
	})

	for _, c := range categories {
		rs.categoryExact[strings.ToUpper(c.UnmappedDescription)] = c.SCSCID
		rs.categories = append(rs.categories, categoryRule{
			upperPattern: strings.ToUpper(c.UnmappedDescription),
			categoryID:   c.SCSCID,
			createdAt:    c.CreatedAt,
		})
	}
	sort.SliceStable(rs.categories, func(i, j int) bool {
		if len(rs.categories[i].upperPattern) != len(rs.categories[j].upperPattern) {
			return len(rs.categories[i].upperPattern) > len(rs.categories[j].upperPattern)
		}
		return rs.categories[i].createdAt.Before(rs.categories[j].createdAt)
	})

	for _, e := range exclusions {
		rs.exclusions = append(rs.exclusions, exclusionRule{
			ruleType:   e.RuleType,
			upperValue: strings.ToUpper(e.Value),
			value:      e.Value,
		})
	}
	return rs
}

// Apply enriches a transaction in place: clean description, standardized
// merchant, category reference, exclusion flag. Idempotent for an
// unchanged ruleset; manual overrides are respected via IsManual.
func (rs *Ruleset) Apply(t *models.Transaction) {
	t.CleanDescription = CleanDescription(t.RawDescription)

	if !t.IsManual {
		t.StandardizedMerchant = rs.ResolveMerchant(t.RawDescription, t.CleanDescription)
		t.CategoryID = rs.ResolveCategory(t.StandardizedMerchant)
	}
	t.IsExcluded = rs.IsExcluded(t)
}

// ResolveMerchant maps a raw description to a standardized merchant:
// exact raw match, then substring match against the cleaned description,
// then the cleaned description itself. Never empty for non-empty input.
func (rs *Ruleset) ResolveMerchant(rawDescription, cleanDescription string) string {
	if m, ok := rs.merchantExact[rawDescription]; ok {
		return m
	}
	upperClean := strings.ToUpper(cleanDescription)
	for _, r := range rs.merchants {
		if r.upperPattern != "" && strings.Contains(upperClean, r.upperPattern) {
			return r.merchant
		}
	}
	return cleanDescription
}

// ResolveCategory maps a standardized merchant to a category identifier,
// or nil when nothing matches. Uncategorized is a valid terminal state.
func (rs *Ruleset) ResolveCategory(standardizedMerchant string) *string {
	upper := strings.ToUpper(standardizedMerchant)
	if id, ok := rs.categoryExact[upper]; ok {
		return &id
	}
	for _, r := range rs.categories {
		if r.upperPattern != "" && strings.Contains(upper, r.upperPattern) {
			id := r.categoryID
			return &id
		}
	}
	return nil
}

// IsExcluded evaluates the active exclusion rules against an enriched
// transaction. First matching rule wins; no match means false.
func (rs *Ruleset) IsExcluded(t *models.Transaction) bool {
	upperRaw := strings.ToUpper(strings.TrimSpace(t.RawDescription))
	upperClean := strings.ToUpper(t.CleanDescription)
	for _, r := range rs.exclusions {
		switch r.ruleType {
		case models.RuleExact:
			if upperRaw == r.upperValue || upperClean == r.upperValue {
				return true
			}
		case models.RulePattern:
			if r.upperValue != "" && (strings.Contains(upperRaw, r.upperValue) || strings.Contains(upperClean, r.upperValue)) {
				return true
			}
		case models.RuleCategory:
			if t.CategoryID != nil && *t.CategoryID == r.value {
				return true
			}
		}
	}
	return false
}
