// Package claimstore gives each document exactly one active processor at a
// time and durably records its terminal outcome. It is the only
// coordination primitive shared across worker goroutines and separate
// worker processes.
package claimstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/ledgerflow/ingestor/internal/statemachine"
)

// Status is the outcome of a Claim call.
type Status string

const (
	StatusClaimed          Status = "claimed"
	StatusAlreadyClaimed   Status = "already_claimed"
	StatusAlreadyProcessed Status = "already_processed"
)

// ClaimResult is the outcome of Store.Claim.
type ClaimResult struct {
	Status      Status
	SourceID    string
	ContentHash string
	OwnerID     string
}

var terminalStatuses = map[statemachine.State]struct{}{
	statemachine.Stored:   {},
	statemachine.Archived: {},
}

var reclaimableStatuses = map[statemachine.State]struct{}{
	statemachine.Failed:         {},
	statemachine.ReviewRequired: {},
}

// Store is a SQLite-backed, single-writer-serialized claim table.
// SQLite itself serializes writers; writeMu additionally serializes
// goroutines within this process so the BEGIN IMMEDIATE path never busy-waits
// against a sibling goroutine sharing the same *sql.DB.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	cache   *lru.Cache[claimKey, struct{}]
}

type claimKey struct {
	sourceID    string
	contentHash string
}

// Config controls Store construction.
type Config struct {
	// DBPath is the SQLite database file path. Its parent directory is
	// created if missing.
	DBPath string
	// CacheSize bounds the advisory already-processed front cache. Zero
	// disables the cache.
	CacheSize int
}

// New opens (creating if necessary) the claim database at cfg.DBPath,
// applies schema migrations, and returns a ready Store.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open claim database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL journal mode: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	var cache *lru.Cache[claimKey, struct{}]
	if cfg.CacheSize > 0 {
		cache, err = lru.New[claimKey, struct{}](cfg.CacheSize)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create advisory cache: %w", err)
		}
	}

	return &Store{db: db, cache: cache}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the claim database is reachable, for the monitoring API's
// readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Claim attempts to acquire exclusive ownership of (sourceID, contentHash)
// for ownerID. At most one concurrent caller across any number of
// goroutines or processes receives StatusClaimed for a given key.
func (s *Store) Claim(ctx context.Context, sourceID, contentHash, ownerID string) (ClaimResult, error) {
	key := claimKey{sourceID, contentHash}
	if s.cache != nil {
		if _, hit := s.cache.Get(key); hit {
			return ClaimResult{Status: StatusAlreadyProcessed, SourceID: sourceID, ContentHash: contentHash}, nil
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.claimLocked(ctx, sourceID, contentHash, ownerID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("%w: %w", ErrClaimFailed, err)
	}

	if s.cache != nil && result.Status == StatusAlreadyProcessed {
		s.cache.Add(key, struct{}{})
	}
	return result, nil
}

func (s *Store) claimLocked(ctx context.Context, sourceID, contentHash, ownerID string) (ClaimResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("begin immediate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		// SQLite's database/sql driver already opened a transaction above;
		// this statement exists purely to document and, on drivers that
		// support it, strengthen the lock acquired at BeginTx time.
		_ = err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO document_claims
			(source_id, content_hash, status, owner_id, claimed_at_utc, updated_at_utc)
		VALUES (?, ?, 'CLAIMED', ?, ?, ?)`,
		sourceID, contentHash, ownerID, now, now,
	)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("insert claim: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("read rows affected: %w", err)
	}
	if affected == 1 {
		if err := tx.Commit(); err != nil {
			return ClaimResult{}, fmt.Errorf("commit claim: %w", err)
		}
		return ClaimResult{Status: StatusClaimed, SourceID: sourceID, ContentHash: contentHash, OwnerID: ownerID}, nil
	}

	var currentStatus, existingOwner sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT status, owner_id FROM document_claims
		WHERE source_id = ? AND content_hash = ?`,
		sourceID, contentHash,
	).Scan(&currentStatus, &existingOwner)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("read existing claim: %w", err)
	}

	state := statemachine.State(currentStatus.String)

	if _, reclaimable := reclaimableStatuses[state]; reclaimable {
		if _, err := tx.ExecContext(ctx, `
			UPDATE document_claims
			SET status = 'CLAIMED', owner_id = ?, updated_at_utc = ?
			WHERE source_id = ? AND content_hash = ?`,
			ownerID, now, sourceID, contentHash,
		); err != nil {
			return ClaimResult{}, fmt.Errorf("reclaim: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return ClaimResult{}, fmt.Errorf("commit reclaim: %w", err)
		}
		return ClaimResult{Status: StatusClaimed, SourceID: sourceID, ContentHash: contentHash, OwnerID: ownerID}, nil
	}

	if err := tx.Commit(); err != nil {
		return ClaimResult{}, fmt.Errorf("commit read: %w", err)
	}

	if _, terminal := terminalStatuses[state]; terminal {
		return ClaimResult{Status: StatusAlreadyProcessed, SourceID: sourceID, ContentHash: contentHash, OwnerID: existingOwner.String}, nil
	}
	return ClaimResult{Status: StatusAlreadyClaimed, SourceID: sourceID, ContentHash: contentHash, OwnerID: existingOwner.String}, nil
}

// MarkStatus unconditionally updates a claimed document's status. Callers
// are responsible for only passing state-machine-legal transitions.
func (s *Store) MarkStatus(ctx context.Context, sourceID, contentHash string, newStatus statemachine.State) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_claims
		SET status = ?, updated_at_utc = ?
		WHERE source_id = ? AND content_hash = ?`,
		string(newStatus), now, sourceID, contentHash,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarkStatusFailed, err)
	}

	if s.cache != nil {
		key := claimKey{sourceID, contentHash}
		if _, terminal := terminalStatuses[newStatus]; terminal {
			s.cache.Add(key, struct{}{})
		} else {
			s.cache.Remove(key)
		}
	}
	return nil
}
