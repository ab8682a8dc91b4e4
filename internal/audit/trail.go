package audit

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"nimbus/internal/constants"
)

// Trail provides thread-safe, append-only decision logging with a running
// blake3 hash chain. Each entry's hash covers the previous entry's hash and
// the entry's own fields, so the chain breaks if any row is altered.
type Trail struct {
	db *sql.DB
	mu sync.Mutex

	maxLogSizeBytes int64
	purgePercentage int
}

// NewTrail creates an audit trail over the given database.
func NewTrail(db *sql.DB, maxLogSizeBytes int64, purgePercentage int) *Trail {
	if maxLogSizeBytes <= 0 {
		maxLogSizeBytes = constants.DefaultAuditMaxLogSizeBytes
	}
	if purgePercentage <= 0 {
		purgePercentage = constants.DefaultAuditPurgePercentage
	}
	return &Trail{
		db:              db,
		maxLogSizeBytes: maxLogSizeBytes,
		purgePercentage: purgePercentage,
	}
}

// Record appends one decision. The write is serialized so the hash chain
// stays consistent under concurrent requests.
func (t *Trail) Record(entry Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	var prevHash string
	err = tx.QueryRow("SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read audit chain head: %w", err)
	}

	entry.EntryHash = chainHash(prevHash, &entry)

	if _, err := tx.Exec(`
		INSERT INTO audit_log (timestamp, request_id, flavor, principal_arn, action, resource, outcome, error_code, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.RequestID, entry.Flavor, entry.PrincipalARN,
		entry.Action, entry.Resource, entry.Outcome, entry.ErrorCode, entry.EntryHash); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return t.purgeIfOversized()
}

// purgeIfOversized drops the oldest purgePercentage of entries once the
// estimated log size exceeds the configured maximum. The chain re-anchors on
// the oldest surviving entry.
func (t *Trail) purgeIfOversized() error {
	var size sql.NullInt64
	err := t.db.QueryRow(`
		SELECT SUM(LENGTH(request_id) + LENGTH(flavor) + LENGTH(principal_arn) +
		           LENGTH(action) + LENGTH(resource) + LENGTH(outcome) +
		           LENGTH(error_code) + LENGTH(entry_hash) + 16)
		FROM audit_log
	`).Scan(&size)
	if err != nil {
		return fmt.Errorf("failed to estimate audit log size: %w", err)
	}
	if !size.Valid || size.Int64 <= t.maxLogSizeBytes {
		return nil
	}

	var count int64
	if err := t.db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count); err != nil {
		return fmt.Errorf("failed to count audit entries: %w", err)
	}
	toDelete := count * int64(t.purgePercentage) / 100
	if toDelete < 1 {
		toDelete = 1
	}
	if _, err := t.db.Exec(`
		DELETE FROM audit_log WHERE id IN
			(SELECT id FROM audit_log ORDER BY id ASC LIMIT ?)
	`, toDelete); err != nil {
		return fmt.Errorf("failed to purge audit entries: %w", err)
	}
	return nil
}

// Query returns entries, newest first.
func (t *Trail) Query(filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, timestamp, request_id, flavor, principal_arn, action, resource, outcome, error_code, entry_hash
		FROM audit_log`
	args := []interface{}{}
	if filter.Outcome != "" {
		query += " WHERE outcome = ?"
		args = append(args, filter.Outcome)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.RequestID, &e.Flavor,
			&e.PrincipalARN, &e.Action, &e.Resource, &e.Outcome, &e.ErrorCode, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Verify walks the whole chain oldest-first and recomputes every hash.
// Returns the number of verified entries, or an error naming the first
// entry whose hash does not match. When earlier entries have been purged,
// the oldest surviving entry serves as the trust anchor and only linkage
// from there on is checked.
func (t *Trail) Verify() (int64, error) {
	rows, err := t.db.Query(`
		SELECT id, timestamp, request_id, flavor, principal_arn, action, resource, outcome, error_code, entry_hash
		FROM audit_log ORDER BY id ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()

	var count int64
	prevHash := ""
	first := true
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.RequestID, &e.Flavor,
			&e.PrincipalARN, &e.Action, &e.Resource, &e.Outcome, &e.ErrorCode, &e.EntryHash); err != nil {
			return count, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		// A first entry with id > 1 is a post-purge anchor; its own hash
		// cannot be recomputed because its predecessor is gone.
		if !first || e.ID == 1 {
			expected := chainHash(prevHash, &e)
			if expected != e.EntryHash {
				return count, fmt.Errorf("audit chain broken at entry %d", e.ID)
			}
		}
		first = false
		prevHash = e.EntryHash
		count++
	}
	return count, rows.Err()
}

// chainHash computes blake3(prevHash || canonical entry fields). The entry's
// own EntryHash field is excluded.
func chainHash(prevHash string, e *Entry) string {
	hasher := blake3.New()
	hasher.Write([]byte(prevHash))
	fmt.Fprintf(hasher, "%d|%s|%s|%s|%s|%s|%s|%s",
		e.Timestamp, e.RequestID, e.Flavor, e.PrincipalARN,
		e.Action, e.Resource, e.Outcome, e.ErrorCode)
	return hex.EncodeToString(hasher.Sum(nil))
}
