package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CategoryMap provenance tags.
const (
	ProvenanceManual     = "manual"
	ProvenanceAutomated  = "automated-suggestion"
	ProvenanceBulkImport = "bulk-import"
)

// ExclusionRule kinds.
const (
	RuleExact    = "exact"
	RulePattern  = "pattern"
	RuleCategory = "category"
)

// StagedTransaction statuses. Approved and rejected rows are terminal
// tombstones; their external identifiers never re-enter pending.
const (
	StagedPending           = "pending"
	StagedApproved          = "approved"
	StagedApprovedDuplicate = "approved_duplicate"
	StagedRejected          = "rejected"
)

// Category is one node of the Section > Category > Subcategory taxonomy.
// The ID is the stable key (e.g. "SCSC0034") referenced everywhere else.
type Category struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Section     string    `gorm:"not null" json:"section"`
	Category    string    `gorm:"not null" json:"category"`
	Subcategory *string   `json:"subcategory"`
	CreatedAt   time.Time `json:"created_at"`
}

// MerchantMap associates a raw bank description pattern with a
// standardized merchant name. Rows are soft-deactivated, never deleted,
// so historical enrichment stays explainable.
type MerchantMap struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RawDescription       string    `gorm:"uniqueIndex;not null" json:"raw_description"`
	StandardizedMerchant string    `gorm:"not null" json:"standardized_merchant"`
	Notes                string    `json:"notes"`
	IsActive             bool      `gorm:"default:true" json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (m *MerchantMap) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// CategoryMap associates an unmapped description (usually a standardized
// merchant) with a taxonomy category.
type CategoryMap struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UnmappedDescription string    `gorm:"uniqueIndex;not null" json:"unmapped_description"`
	SCSCID              string    `gorm:"column:scsc_id;not null" json:"scsc_id"`
	Source              string    `gorm:"default:manual" json:"source"`
	IsActive            bool      `gorm:"default:true" json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	Category *Category `gorm:"foreignKey:SCSCID" json:"-"`
}

func (m *CategoryMap) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ExclusionRule flags transactions that should be hidden from reporting.
// Rules are evaluated against transactions, never stored on them.
type ExclusionRule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RuleType  string    `gorm:"not null" json:"rule_type"` // exact | pattern | category
	Value     string    `gorm:"not null" json:"value"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *ExclusionRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Transaction is a committed, enriched record. Identity is the
// fingerprint; the unique index is the dedup gate for every channel.
type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Fingerprint string    `gorm:"uniqueIndex;not null" json:"fingerprint"`
	SimplefinID *string   `gorm:"uniqueIndex" json:"simplefin_id"`

	Date             time.Time `gorm:"not null;index" json:"date"`
	Amount           float64   `gorm:"not null" json:"amount"` // negative = expense
	RawDescription   string    `gorm:"not null" json:"raw_description"`
	CleanDescription string    `json:"clean_description"`

	StandardizedMerchant string  `json:"standardized_merchant"`
	CategoryID           *string `json:"category_id"`
	IsExcluded           bool    `gorm:"default:false" json:"is_excluded"`

	AccountName  string `gorm:"index" json:"account_name"`
	ImportMethod string `gorm:"default:csv" json:"import_method"` // csv | simplefin | manual
	IsManual     bool   `gorm:"default:false" json:"is_manual"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"-"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// StagedTransaction holds an externally fetched record between fetch and
// review. Its identity space (ExternalID) is independent from the
// committed fingerprint space.
type StagedTransaction struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID  string     `gorm:"uniqueIndex;not null" json:"external_id"`
	Date        time.Time  `gorm:"not null" json:"date"`
	Description string     `gorm:"not null" json:"description"`
	Amount      float64    `gorm:"not null" json:"amount"`
	AccountName string     `json:"account_name"`
	Status      string     `gorm:"default:pending;index" json:"status"`
	FetchedAt   time.Time  `json:"fetched_at"`
	DecidedAt   *time.Time `json:"decided_at"`
}

func (s *StagedTransaction) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AppSetting is a simple key/value row for runtime settings such as the
// SimpleFin access URL.
type AppSetting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	Component string    `json:"component"`
	UpdatedAt time.Time `json:"updated_at"`
}
