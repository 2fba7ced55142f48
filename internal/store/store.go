// Package store persists committed ledger snapshots and the event history in
// SQLite. The node restores its latest snapshot at startup, so a crash loses at
// most the blocks Tendermint replays on handshake.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crowdfund.ledger/cfl/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile        = "ledger.db"
	defaultBackupDirName = "backups"
	maxBusyTimeoutMs     = 5000
	defaultKeepSnapshots = 100
)

// ErrNoSnapshot is returned by Latest on a fresh database.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is the serialised application state at a committed height.
type Snapshot struct {
	Height    int64
	AppHash   []byte
	State     []byte
	CreatedAt time.Time
}

// Store keeps snapshots and events in a single SQLite file.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	file      string
	backupDir string
	keep      int
}

// NewStore opens (or creates) the database at filePath, falling back to the
// newest backup when the file cannot be opened.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	s := &Store{
		file:      absPath,
		backupDir: filepath.Join(filepath.Dir(absPath), defaultBackupDirName),
		keep:      defaultKeepSnapshots,
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	if err := s.tryOpenOrRecover(); err != nil {
		return nil, err
	}

	if err := s.ensureSchema(); err != nil {
		_ = s.closeDB()
		return nil, err
	}

	return s, nil
}

// SetRetention sets how many snapshots SaveCommit keeps. Values below one are
// ignored.
func (s *Store) SetRetention(keep int) {
	if keep < 1 {
		return
	}
	s.mu.Lock()
	s.keep = keep
	s.mu.Unlock()
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

func (s *Store) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(s.file)))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps writes ordered behind the commit path
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	var tables int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&tables); err != nil {
		db.Close()
		return fmt.Errorf("read sqlite schema: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			height INTEGER PRIMARY KEY,
			app_hash BLOB NOT NULL,
			state BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			height INTEGER NOT NULL,
			campaign_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			attributes TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_campaign ON events (campaign_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	return nil
}

// SaveCommit stores the snapshot for a committed block together with the
// events it produced, then prunes snapshots beyond the retention window.
// Everything happens in one transaction.
func (s *Store) SaveCommit(snap Snapshot, events []ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("store is closed")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO snapshots (height, app_hash, state, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(height) DO UPDATE SET
			app_hash = excluded.app_hash,
			state = excluded.state,
			created_at = excluded.created_at`,
		snap.Height, snap.AppHash, snap.State, snap.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(events) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO events (height, campaign_id, type, attributes) VALUES (?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("prepare event insert: %w", err)
		}
		defer stmt.Close()

		for _, ev := range events {
			attrs, err := json.Marshal(ev.Attributes)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("encode event attributes: %w", err)
			}
			if _, err := stmt.Exec(int64(ev.Height), int64(ev.CampaignID), ev.Type, string(attrs)); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert event: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM snapshots WHERE height <= ?`, snap.Height-int64(s.keep)); err != nil {
		tx.Rollback()
		return fmt.Errorf("prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Latest returns the snapshot with the highest height.
func (s *Store) Latest() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT height, app_hash, state, created_at FROM snapshots ORDER BY height DESC LIMIT 1`)
	return scanSnapshot(row)
}

// At returns the snapshot stored for height.
func (s *Store) At(height int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT height, app_hash, state, created_at FROM snapshots WHERE height = ?`, height)
	return scanSnapshot(row)
}

// Events returns up to limit events for campaignID, newest first. A zero
// campaignID returns events from every campaign.
func (s *Store) Events(campaignID uint64, limit int) ([]ledger.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if campaignID == 0 {
		rows, err = s.db.Query(`SELECT height, campaign_id, type, attributes FROM events ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT height, campaign_id, type, attributes FROM events WHERE campaign_id = ? ORDER BY id DESC LIMIT ?`, int64(campaignID), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]ledger.Event, 0)
	for rows.Next() {
		var (
			height, cid int64
			evType      string
			attrs       string
		)
		if err := rows.Scan(&height, &cid, &evType, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev := ledger.Event{Type: evType, CampaignID: uint64(cid), Height: uint64(height)}
		if err := json.Unmarshal([]byte(attrs), &ev.Attributes); err != nil {
			return nil, fmt.Errorf("decode event attributes: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var (
		snap      Snapshot
		createdAt string
	)
	if err := row.Scan(&snap.Height, &snap.AppHash, &snap.State, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		snap.CreatedAt = ts
	}
	return &snap, nil
}
