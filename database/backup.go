package database

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DailyBackup copies the database file into backupDir once per day and
// prunes old copies beyond retentionDays. Only meaningful for the sqlite
// driver; callers skip it otherwise.
func DailyBackup(log zerolog.Logger, dbPath, backupDir string, retentionDays int) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Warn().Str("path", dbPath).Msg("database file not found, skipping backup")
		return nil
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	base := filepath.Base(dbPath)
	target := filepath.Join(backupDir, time.Now().Format("2006-01-02")+"_"+base)

	if _, err := os.Stat(target); err == nil {
		log.Info().Str("path", target).Msg("backup for today already exists")
	} else {
		if err := copyFile(dbPath, target); err != nil {
			return fmt.Errorf("backup database: %w", err)
		}
		log.Info().Str("path", target).Msg("database backed up")
	}

	return pruneBackups(log, backupDir, base, retentionDays)
}

func pruneBackups(log zerolog.Logger, backupDir, base string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(backupDir, "*_"+base))
	if err != nil {
		return err
	}
	// Names start with YYYY-MM-DD, so lexical order is date order.
	sort.Strings(matches)
	for len(matches) > keep {
		oldest := matches[0]
		matches = matches[1:]
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("prune backup %s: %w", oldest, err)
		}
		log.Info().Str("path", oldest).Msg("pruned old backup")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
