// Package staging implements the two-phase ingestion pipeline: externally
// fetched records are held in a reviewable pending state and only become
// committed transactions on approval. Approved and rejected rows are kept
// as terminal tombstones so a re-fetch of already-decided data is a no-op.
package staging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"finapp-go-be/enrich"
	"finapp-go-be/models"
	"finapp-go-be/reconcile"
	"finapp-go-be/simplefin"
)

// Fetcher is the external paginated source, consumed at its interface
// boundary only. simplefin.Client satisfies it.
type Fetcher interface {
	FetchTransactions(ctx context.Context, start, end time.Time) (*simplefin.FetchResult, error)
}

// SyncReport summarizes one sync-to-staging run. Incomplete means the
// window was not fully covered (fetch failure, cancellation or source
// truncation); an incomplete failed fetch stages nothing.
type SyncReport struct {
	Fetched                  int  `json:"fetched"`
	NewlyStaged              int  `json:"newly_staged"`
	SkippedAlreadyCommitted  int  `json:"skipped_already_committed"`
	SkippedAlreadyStaged     int  `json:"skipped_already_staged"`
	RejectedByValidityFilter int  `json:"rejected_by_validity_filter"`
	Incomplete               bool `json:"incomplete"`
}

// ApprovalReport extends the reconciliation report shape with the
// approved-as-duplicate counter: rows whose fingerprint already existed
// (same economic event imported through another channel).
type ApprovalReport struct {
	reconcile.Report
	ApprovedAsDuplicate int `json:"approved_as_duplicate"`
}

// Manager serializes all staging operations. One in-process mutex is
// sufficient at this scale; the model is single-writer.
type Manager struct {
	db       *gorm.DB
	log      zerolog.Logger
	earliest time.Time // validity cutoff for fetched records
	mu       sync.Mutex

	now func() time.Time
}

func NewManager(db *gorm.DB, log zerolog.Logger, earliest time.Time) *Manager {
	return &Manager{db: db, log: log, earliest: earliest, now: time.Now}
}

// Sync fetches the lookback window from the source, filters by the
// validity cutoff, deduplicates against committed transactions and every
// staged row regardless of status, and inserts survivors as pending.
func (m *Manager) Sync(ctx context.Context, fetcher Fetcher, lookbackDays int) (*SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &SyncReport{}

	end := m.now()
	start := end.AddDate(0, 0, -lookbackDays)
	if start.Before(m.earliest) {
		start = m.earliest
	}
	if !start.Before(end) {
		return report, fmt.Errorf("requested window ends before the validity cutoff %s", m.earliest.Format("2006-01-02"))
	}

	result, err := fetcher.FetchTransactions(ctx, start, end)
	if result != nil {
		report.Fetched = len(result.Transactions)
		report.Incomplete = result.Truncated
	}
	if err != nil {
		// Abort without staging partial results from a failed fetch.
		report.Incomplete = true
		return report, fmt.Errorf("fetch: %w", err)
	}
	if len(result.Transactions) == 0 {
		return report, nil
	}

	ids := make([]string, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		ids = append(ids, tx.ExternalID)
	}

	committed, err := m.committedExternalIDs(ids)
	if err != nil {
		return report, err
	}
	staged, err := m.stagedExternalIDs(ids)
	if err != nil {
		return report, err
	}

	var rows []models.StagedTransaction
	fetchedAt := m.now()
	for _, tx := range result.Transactions {
		if tx.Date.Before(m.earliest) {
			report.RejectedByValidityFilter++
			continue
		}
		if committed[tx.ExternalID] {
			report.SkippedAlreadyCommitted++
			continue
		}
		if staged[tx.ExternalID] {
			report.SkippedAlreadyStaged++
			continue
		}
		staged[tx.ExternalID] = true // collapse duplicates within the batch

		rows = append(rows, models.StagedTransaction{
			ExternalID:  tx.ExternalID,
			Date:        tx.Date,
			Description: tx.Description,
			Amount:      tx.Amount,
			AccountName: tx.AccountLabel,
			Status:      models.StagedPending,
			FetchedAt:   fetchedAt,
		})
	}

	if len(rows) > 0 {
		if err := m.db.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(rows, 100).Error
		}); err != nil {
			return report, fmt.Errorf("stage batch: %w", err)
		}
	}
	report.NewlyStaged = len(rows)

	m.log.Info().
		Int("fetched", report.Fetched).
		Int("staged", report.NewlyStaged).
		Int("skipped_committed", report.SkippedAlreadyCommitted).
		Int("skipped_staged", report.SkippedAlreadyStaged).
		Int("rejected", report.RejectedByValidityFilter).
		Bool("incomplete", report.Incomplete).
		Msg("sync to staging finished")
	return report, nil
}

// Approve converts the selected pending rows into committed transactions.
// Enrichment runs now, not at fetch time, so mapping edits made during
// review are honored. Fingerprint collisions mark the staged row
// approved-as-duplicate without inserting.
func (m *Manager) Approve(ids []uuid.UUID) (*ApprovalReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &ApprovalReport{Report: reconcile.Report{
		TotalRows: len(ids),
		Errors:    []reconcile.RowError{},
		Warnings:  []string{},
	}}

	var staged []models.StagedTransaction
	if err := m.db.Where("id IN ? AND status = ?", ids, models.StagedPending).Find(&staged).Error; err != nil {
		return nil, fmt.Errorf("load staged rows: %w", err)
	}
	byID := make(map[uuid.UUID]bool, len(staged))
	for _, s := range staged {
		byID[s.ID] = true
	}
	for i, id := range ids {
		if !byID[id] {
			report.Errors = append(report.Errors, reconcile.RowError{
				Row: i + 1, Key: id.String(), Reason: "not a pending staged row",
			})
		}
	}

	if len(staged) == 0 {
		return report, nil
	}

	ruleset, err := enrich.LoadRuleset(m.db)
	if err != nil {
		return nil, fmt.Errorf("load ruleset: %w", err)
	}

	fingerprints := make([]string, 0, len(staged))
	for _, s := range staged {
		fingerprints = append(fingerprints, models.Fingerprint(s.Date, s.Amount, s.Description, s.AccountName))
	}
	existing, err := m.committedFingerprints(fingerprints)
	if err != nil {
		return nil, err
	}

	decidedAt := m.now()
	err = m.db.Transaction(func(tx *gorm.DB) error {
		for i, s := range staged {
			fp := fingerprints[i]
			status := models.StagedApproved

			if existing[fp] {
				status = models.StagedApprovedDuplicate
				report.ApprovedAsDuplicate++
				report.Skipped++
			} else {
				extID := s.ExternalID
				row := models.Transaction{
					Fingerprint:    fp,
					SimplefinID:    &extID,
					Date:           s.Date,
					Amount:         s.Amount,
					RawDescription: s.Description,
					AccountName:    s.AccountName,
					ImportMethod:   "simplefin",
				}
				ruleset.Apply(&row)
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				existing[fp] = true // a later row in this batch may collide
				report.Inserted++
			}

			err := tx.Model(&models.StagedTransaction{}).Where("id = ?", s.ID).
				Updates(map[string]interface{}{
					"status":     status,
					"decided_at": decidedAt,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve batch: %w", err)
	}

	m.log.Info().
		Int("inserted", report.Inserted).
		Int("approved_as_duplicate", report.ApprovedAsDuplicate).
		Int("errors", len(report.Errors)).
		Msg("staging approval finished")
	return report, nil
}

// Reject tombstones the selected pending rows. Rejection is final: the
// external identifiers never re-enter pending and never reach the store.
func (m *Manager) Reject(ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.db.Model(&models.StagedTransaction{}).
		Where("id IN ? AND status = ?", ids, models.StagedPending).
		Updates(map[string]interface{}{
			"status":     models.StagedRejected,
			"decided_at": m.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reject staged rows: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Pending lists reviewable rows, newest first.
func (m *Manager) Pending() ([]models.StagedTransaction, error) {
	var rows []models.StagedTransaction
	err := m.db.Where("status = ?", models.StagedPending).
		Order("date desc").Find(&rows).Error
	return rows, err
}

func (m *Manager) committedExternalIDs(ids []string) (map[string]bool, error) {
	var present []string
	err := m.db.Model(&models.Transaction{}).
		Where("simplefin_id IN ?", ids).
		Pluck("simplefin_id", &present).Error
	if err != nil {
		return nil, fmt.Errorf("load committed external ids: %w", err)
	}
	out := make(map[string]bool, len(present))
	for _, id := range present {
		out[id] = true
	}
	return out, nil
}

// stagedExternalIDs loads staged ids across every status: terminal
// history counts, not only the active pending set.
func (m *Manager) stagedExternalIDs(ids []string) (map[string]bool, error) {
	var present []string
	err := m.db.Model(&models.StagedTransaction{}).
		Where("external_id IN ?", ids).
		Pluck("external_id", &present).Error
	if err != nil {
		return nil, fmt.Errorf("load staged external ids: %w", err)
	}
	out := make(map[string]bool, len(present))
	for _, id := range present {
		out[id] = true
	}
	return out, nil
}

func (m *Manager) committedFingerprints(fps []string) (map[string]bool, error) {
	var present []string
	err := m.db.Model(&models.Transaction{}).
		Where("fingerprint IN ?", fps).
		Pluck("fingerprint", &present).Error
	if err != nil {
		return nil, fmt.Errorf("load committed fingerprints: %w", err)
	}
	out := make(map[string]bool, len(present))
	for _, fp := range present {
		out[fp] = true
	}
	return out, nil
}
