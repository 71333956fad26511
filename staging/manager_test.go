package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"finapp-go-be/database"
	"finapp-go-be/models"
	"finapp-go-be/simplefin"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type stubFetcher struct {
	result *simplefin.FetchResult
	err    error
}

func (f stubFetcher) FetchTransactions(ctx context.Context, start, end time.Time) (*simplefin.FetchResult, error) {
	return f.result, f.err
}

var (
	testEarliest = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testNow      = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(newTestDB(t), zerolog.Nop(), testEarliest)
	m.now = func() time.Time { return testNow }
	return m
}

func rawTx(id string, date time.Time, desc string, amount float64) simplefin.RawTransaction {
	return simplefin.RawTransaction{
		ExternalID:   id,
		Date:         date,
		Description:  desc,
		Amount:       amount,
		AccountLabel: "Bank - Checking",
	}
}

func TestSync_StagesOnceAndSkipsOnRefetch(t *testing.T) {
	m := newTestManager(t)
	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx("acc1-tx1", testNow.AddDate(0, 0, -3), "WHOLE FOODS MKT #2341", -42.50),
			rawTx("acc1-tx2", testNow.AddDate(0, 0, -2), "COFFEE SHOP", -4.00),
		},
	}}

	report, err := m.Sync(context.Background(), fetcher, 30)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if report.NewlyStaged != 2 || report.Fetched != 2 {
		t.Fatalf("first sync staged/fetched = %d/%d, want 2/2", report.NewlyStaged, report.Fetched)
	}

	// Same window again: both ids are known, nothing new appears.
	report, err = m.Sync(context.Background(), fetcher, 30)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.NewlyStaged != 0 || report.SkippedAlreadyStaged != 2 {
		t.Errorf("second sync staged/skipped = %d/%d, want 0/2",
			report.NewlyStaged, report.SkippedAlreadyStaged)
	}

	pending, err := m.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending rows = %d, want 2", len(pending))
	}
}

func TestSync_ValidityFilter(t *testing.T) {
	m := newTestManager(t)
	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx("old-1", time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC), "ANCIENT", -1.00),
			rawTx("new-1", testNow.AddDate(0, 0, -1), "RECENT", -2.00),
		},
	}}

	report, err := m.Sync(context.Background(), fetcher, 30)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.RejectedByValidityFilter != 1 || report.NewlyStaged != 1 {
		t.Errorf("rejected/staged = %d/%d, want 1/1",
			report.RejectedByValidityFilter, report.NewlyStaged)
	}
}

func TestSync_SkipsAlreadyCommitted(t *testing.T) {
	m := newTestManager(t)
	extID := "acc1-tx1"
	if err := m.db.Create(&models.Transaction{
		Fingerprint:    "committed-before",
		SimplefinID:    &extID,
		Date:           testNow.AddDate(0, 0, -3),
		Amount:         -42.50,
		RawDescription: "WHOLE FOODS MKT #2341",
		AccountName:    "Bank - Checking",
		ImportMethod:   "simplefin",
	}).Error; err != nil {
		t.Fatalf("seed committed transaction: %v", err)
	}

	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx(extID, testNow.AddDate(0, 0, -3), "WHOLE FOODS MKT #2341", -42.50),
		},
	}}
	report, err := m.Sync(context.Background(), fetcher, 30)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.SkippedAlreadyCommitted != 1 || report.NewlyStaged != 0 {
		t.Errorf("skipped_committed/staged = %d/%d, want 1/0",
			report.SkippedAlreadyCommitted, report.NewlyStaged)
	}
}

func TestSync_FetchFailureStagesNothing(t *testing.T) {
	m := newTestManager(t)
	fetcher := stubFetcher{
		result: &simplefin.FetchResult{
			Transactions: []simplefin.RawTransaction{
				rawTx("partial-1", testNow.AddDate(0, 0, -2), "PARTIAL", -1.00),
			},
			Truncated: true,
		},
		err: errors.New("window 2 failed"),
	}

	report, err := m.Sync(context.Background(), fetcher, 30)
	if err == nil {
		t.Fatal("failed fetch must surface an error")
	}
	if !report.Incomplete {
		t.Error("report must be marked incomplete")
	}

	var count int64
	m.db.Model(&models.StagedTransaction{}).Count(&count)
	if count != 0 {
		t.Errorf("failed fetch staged %d rows, want 0", count)
	}
}

func TestReject_IsTerminal(t *testing.T) {
	m := newTestManager(t)
	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx("acc1-tx1", testNow.AddDate(0, 0, -3), "SPAM FEE", -9.99),
		},
	}}
	if _, err := m.Sync(context.Background(), fetcher, 30); err != nil {
		t.Fatalf("sync: %v", err)
	}
	pending, _ := m.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending rows = %d, want 1", len(pending))
	}

	n, err := m.Reject([]uuid.UUID{pending[0].ID})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if n != 1 {
		t.Fatalf("rejected %d rows, want 1", n)
	}

	// The tombstone keeps the external id out of pending on re-fetch.
	report, err := m.Sync(context.Background(), fetcher, 30)
	if err != nil {
		t.Fatalf("re-sync: %v", err)
	}
	if report.NewlyStaged != 0 || report.SkippedAlreadyStaged != 1 {
		t.Errorf("re-sync staged/skipped = %d/%d, want 0/1",
			report.NewlyStaged, report.SkippedAlreadyStaged)
	}
	pending, _ = m.Pending()
	if len(pending) != 0 {
		t.Errorf("pending rows after reject = %d, want 0", len(pending))
	}

	// Rejecting again is a no-op.
	n, err = m.Reject([]uuid.UUID{pending0ID(t, m)})
	if err != nil {
		t.Fatalf("second reject: %v", err)
	}
	if n != 0 {
		t.Errorf("second reject affected %d rows, want 0", n)
	}
}

// pending0ID returns the id of the first staged row regardless of status.
func pending0ID(t *testing.T, m *Manager) uuid.UUID {
	t.Helper()
	var row models.StagedTransaction
	if err := m.db.First(&row).Error; err != nil {
		t.Fatalf("load staged row: %v", err)
	}
	return row.ID
}

func TestApprove_CommitsWithEnrichment(t *testing.T) {
	m := newTestManager(t)
	if err := m.db.Create(&models.Category{ID: "SCSC0034", Section: "Food", Category: "Groceries"}).Error; err != nil {
		t.Fatalf("seed taxonomy: %v", err)
	}
	if err := m.db.Create(&models.MerchantMap{RawDescription: "WHOLE FOODS MKT #2341", StandardizedMerchant: "Whole Foods", IsActive: true}).Error; err != nil {
		t.Fatalf("seed merchant map: %v", err)
	}
	if err := m.db.Create(&models.CategoryMap{UnmappedDescription: "Whole Foods", SCSCID: "SCSC0034", IsActive: true}).Error; err != nil {
		t.Fatalf("seed category map: %v", err)
	}

	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx("acc1-tx1", testNow.AddDate(0, 0, -3), "WHOLE FOODS MKT #2341", -42.50),
		},
	}}
	if _, err := m.Sync(context.Background(), fetcher, 30); err != nil {
		t.Fatalf("sync: %v", err)
	}
	pending, _ := m.Pending()

	report, err := m.Approve([]uuid.UUID{pending[0].ID})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if report.Inserted != 1 || report.ApprovedAsDuplicate != 0 {
		t.Fatalf("inserted/dup = %d/%d, want 1/0", report.Inserted, report.ApprovedAsDuplicate)
	}

	var tx models.Transaction
	if err := m.db.First(&tx, "simplefin_id = ?", "acc1-tx1").Error; err != nil {
		t.Fatalf("load committed transaction: %v", err)
	}
	if tx.StandardizedMerchant != "Whole Foods" {
		t.Errorf("merchant = %q, want enrichment applied at approval time", tx.StandardizedMerchant)
	}
	if tx.CategoryID == nil || *tx.CategoryID != "SCSC0034" {
		t.Errorf("category = %v, want SCSC0034", tx.CategoryID)
	}

	var staged models.StagedTransaction
	if err := m.db.First(&staged, "external_id = ?", "acc1-tx1").Error; err != nil {
		t.Fatalf("load staged row: %v", err)
	}
	if staged.Status != models.StagedApproved {
		t.Errorf("staged status = %q, want %q", staged.Status, models.StagedApproved)
	}
	if staged.DecidedAt == nil {
		t.Error("decided_at not stamped")
	}
}

func TestApprove_FingerprintCollisionBecomesDuplicate(t *testing.T) {
	m := newTestManager(t)

	date := testNow.AddDate(0, 0, -3)
	// The same economic event already landed through a CSV import.
	fp := models.Fingerprint(date, -42.50, "WHOLE FOODS MKT #2341", "Bank - Checking")
	if err := m.db.Create(&models.Transaction{
		Fingerprint:    fp,
		Date:           date,
		Amount:         -42.50,
		RawDescription: "WHOLE FOODS MKT #2341",
		AccountName:    "Bank - Checking",
		ImportMethod:   "csv",
	}).Error; err != nil {
		t.Fatalf("seed committed transaction: %v", err)
	}

	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx("acc1-tx1", date, "WHOLE FOODS MKT #2341", -42.50),
		},
	}}
	if _, err := m.Sync(context.Background(), fetcher, 30); err != nil {
		t.Fatalf("sync: %v", err)
	}
	pending, _ := m.Pending()

	report, err := m.Approve([]uuid.UUID{pending[0].ID})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if report.ApprovedAsDuplicate != 1 || report.Inserted != 0 {
		t.Errorf("dup/inserted = %d/%d, want 1/0", report.ApprovedAsDuplicate, report.Inserted)
	}

	var count int64
	m.db.Model(&models.Transaction{}).Count(&count)
	if count != 1 {
		t.Errorf("store rows = %d, want 1 (duplicate must not insert)", count)
	}

	var staged models.StagedTransaction
	if err := m.db.First(&staged, "external_id = ?", "acc1-tx1").Error; err != nil {
		t.Fatalf("load staged row: %v", err)
	}
	if staged.Status != models.StagedApprovedDuplicate {
		t.Errorf("staged status = %q, want %q", staged.Status, models.StagedApprovedDuplicate)
	}
}

func TestApprove_InBatchCollision(t *testing.T) {
	m := newTestManager(t)

	date := testNow.AddDate(0, 0, -3)
	// Distinct external ids but identical fingerprint tuples.
	fetcher := stubFetcher{result: &simplefin.FetchResult{
		Transactions: []simplefin.RawTransaction{
			rawTx("acc1-tx1", date, "GYM MEMBERSHIP", -30.00),
			rawTx("acc1-tx2", date, "GYM MEMBERSHIP", -30.00),
		},
	}}
	if _, err := m.Sync(context.Background(), fetcher, 30); err != nil {
		t.Fatalf("sync: %v", err)
	}
	pending, _ := m.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending rows = %d, want 2", len(pending))
	}

	ids := []uuid.UUID{pending[0].ID, pending[1].ID}
	report, err := m.Approve(ids)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if report.Inserted != 1 || report.ApprovedAsDuplicate != 1 {
		t.Errorf("inserted/dup = %d/%d, want 1/1", report.Inserted, report.ApprovedAsDuplicate)
	}
}

func TestApprove_NonPendingIDsReported(t *testing.T) {
	m := newTestManager(t)

	ghost := uuid.New()
	report, err := m.Approve([]uuid.UUID{ghost})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(report.Errors))
	}
	if report.Errors[0].Key != ghost.String() {
		t.Errorf("error key = %q, want %q", report.Errors[0].Key, ghost.String())
	}
	if report.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", report.Inserted)
	}
}
