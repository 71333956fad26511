package importer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"finapp-go-be/enrich"
	"finapp-go-be/models"
	"finapp-go-be/reconcile"
)

var transactionsMu sync.Mutex

// Date column priority mirrors the bank exports seen in the wild:
// a transaction date beats the posting date when both are present.
var transactionColumns = map[string][]string{
	"date":        {"transaction date", "posting date", "post date", "date"},
	"amount":      {"amount", "transaction amount"},
	"debit":       {"debit"},
	"credit":      {"credit"},
	"description": {"transaction description", "description", "merchant", "narrative", "memo"},
	"source":      {"source", "account name"},
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
}

type transactionRecord struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	AccountName string

	fingerprint string
	parseErr    error
}

func (r transactionRecord) Key() string { return r.fingerprint }

func (r transactionRecord) Validate() error {
	if r.parseErr != nil {
		return r.parseErr
	}
	if r.Description == "" {
		return errors.New("missing description")
	}
	return nil
}

// normalizeTransactionRow converts one CSV row into a record. Amounts
// come either from a signed Amount column or from split Debit/Credit
// columns (debit is an outflow, credit an inflow). Currency symbols and
// thousands separators are tolerated.
func normalizeTransactionRow(cols columnIndex, row []string, defaultSource string) transactionRecord {
	rec := transactionRecord{AccountName: defaultSource}

	if s := cols.get(row, "source"); s != "" {
		rec.AccountName = s
	}
	rec.Description = cols.get(row, "description")

	rawDate := cols.get(row, "date")
	if rawDate == "" {
		rec.parseErr = errors.New("missing date")
		return rec
	}
	var parsed bool
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, rawDate); err == nil {
			rec.Date = d
			parsed = true
			break
		}
	}
	if !parsed {
		rec.parseErr = fmt.Errorf("unparsable date %q", rawDate)
		return rec
	}

	if raw := cols.get(row, "amount"); raw != "" {
		amt, err := parseAmount(raw)
		if err != nil {
			rec.parseErr = fmt.Errorf("non-numeric amount %q", raw)
			return rec
		}
		rec.Amount = amt
	} else {
		debit := decimal.Zero
		credit := decimal.Zero
		if raw := cols.get(row, "debit"); raw != "" {
			v, err := parseAmount(raw)
			if err != nil {
				rec.parseErr = fmt.Errorf("non-numeric debit %q", raw)
				return rec
			}
			debit = v.Abs()
		}
		if raw := cols.get(row, "credit"); raw != "" {
			v, err := parseAmount(raw)
			if err != nil {
				rec.parseErr = fmt.Errorf("non-numeric credit %q", raw)
				return rec
			}
			credit = v.Abs()
		}
		if debit.IsZero() && credit.IsZero() {
			rec.parseErr = errors.New("missing amount")
			return rec
		}
		rec.Amount = credit.Sub(debit)
	}

	rec.fingerprint = models.Fingerprint(rec.Date, rec.Amount.InexactFloat64(), rec.Description, rec.AccountName)
	return rec
}

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
	return decimal.NewFromString(strings.TrimSpace(cleaned))
}

type transactionTarget struct {
	db      *gorm.DB
	ruleset *enrich.Ruleset
}

func (t transactionTarget) ExistingKeys(keys []string) (map[string]bool, error) {
	var present []string
	err := t.db.Model(&models.Transaction{}).
		Where("fingerprint IN ?", keys).
		Pluck("fingerprint", &present).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(present))
	for _, k := range present {
		out[k] = true
	}
	return out, nil
}

func (t transactionTarget) Apply(inserts, updates []reconcile.Record) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		rows := make([]models.Transaction, 0, len(inserts))
		for _, rec := range inserts {
			r := rec.(transactionRecord)
			row := models.Transaction{
				Fingerprint:    r.fingerprint,
				Date:           r.Date,
				Amount:         r.Amount.InexactFloat64(),
				RawDescription: r.Description,
				AccountName:    r.AccountName,
				ImportMethod:   "csv",
			}
			t.ruleset.Apply(&row)
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		// Fingerprint conflicts are never updates; duplicates were
		// classified as skips before Apply was called.
		return nil
	})
}

// ImportTransactions reconciles a bank-export CSV into the transaction
// store. Fingerprint collisions classify as skips; enrichment runs at
// commit time with a single preloaded ruleset for the whole batch.
func ImportTransactions(db *gorm.DB, path, sourceLabel string, dryRun bool) (*reconcile.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return importTransactions(db, f, sourceLabel, dryRun)
}

func importTransactions(db *gorm.DB, r io.Reader, sourceLabel string, dryRun bool) (*reconcile.Report, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(header, transactionColumns)
	if _, ok := cols["date"]; !ok {
		return nil, errors.New("csv must contain a date column")
	}
	if _, ok := cols["description"]; !ok {
		return nil, errors.New("csv must contain a description column")
	}

	if sourceLabel == "" {
		sourceLabel = "Imported CSV"
	}

	records := make([]reconcile.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, normalizeTransactionRow(cols, row, sourceLabel))
	}

	ruleset, err := enrich.LoadRuleset(db)
	if err != nil {
		return nil, fmt.Errorf("load ruleset: %w", err)
	}

	transactionsMu.Lock()
	defer transactionsMu.Unlock()
	return reconcile.Run(records, transactionTarget{db: db, ruleset: ruleset}, reconcile.Options{
		DryRun:          dryRun,
		ReplaceExisting: false,
	})
}
