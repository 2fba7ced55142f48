package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crowdfund.ledger/cfl/internal/ledger"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestLatestOnFreshStore(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Latest(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveCommitAndLatest(t *testing.T) {
	s, _ := newTestStore(t)

	for h := int64(1); h <= 3; h++ {
		snap := Snapshot{Height: h, AppHash: []byte{byte(h)}, State: []byte(fmt.Sprintf(`{"height":%d}`, h))}
		if err := s.SaveCommit(snap, nil); err != nil {
			t.Fatalf("SaveCommit(%d): %v", h, err)
		}
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Height != 3 || latest.AppHash[0] != 3 || string(latest.State) != `{"height":3}` {
		t.Fatalf("unexpected latest snapshot: %+v", latest)
	}
	if latest.CreatedAt.IsZero() {
		t.Fatalf("created_at not recorded")
	}

	at, err := s.At(2)
	if err != nil {
		t.Fatalf("At(2): %v", err)
	}
	if at.AppHash[0] != 2 {
		t.Fatalf("At(2) returned height %d", at.Height)
	}
	if _, err := s.At(99); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("At(99): expected ErrNoSnapshot, got %v", err)
	}
}

func TestSaveCommitPrunesOldSnapshots(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetRetention(2)

	for h := int64(1); h <= 5; h++ {
		if err := s.SaveCommit(Snapshot{Height: h, AppHash: []byte{1}, State: []byte("{}")}, nil); err != nil {
			t.Fatalf("SaveCommit(%d): %v", h, err)
		}
	}

	for _, h := range []int64{1, 2, 3} {
		if _, err := s.At(h); !errors.Is(err, ErrNoSnapshot) {
			t.Fatalf("snapshot %d should have been pruned, got %v", h, err)
		}
	}
	for _, h := range []int64{4, 5} {
		if _, err := s.At(h); err != nil {
			t.Fatalf("snapshot %d should be retained: %v", h, err)
		}
	}
}

func TestEventsByCampaign(t *testing.T) {
	s, _ := newTestStore(t)

	events := []ledger.Event{
		{Type: ledger.EventCampaignCreated, CampaignID: 1, Height: 10, Attributes: []ledger.Attribute{{Key: "owner", Value: "alice"}}},
		{Type: ledger.EventDonationReceived, CampaignID: 1, Height: 10, Attributes: []ledger.Attribute{{Key: "donor", Value: "bob"}, {Key: "amount", Value: "5"}}},
		{Type: ledger.EventCampaignCreated, CampaignID: 2, Height: 10, Attributes: []ledger.Attribute{{Key: "owner", Value: "carol"}}},
	}
	if err := s.SaveCommit(Snapshot{Height: 10, AppHash: []byte{1}, State: []byte("{}")}, events); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}

	got, err := s.Events(1, 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events for campaign 1 = %d, want 2", len(got))
	}
	if got[0].Type != ledger.EventDonationReceived || got[0].Attr("amount") != "5" {
		t.Fatalf("newest event first expected, got %+v", got[0])
	}

	all, err := s.Events(0, 2)
	if err != nil {
		t.Fatalf("Events(all): %v", err)
	}
	if len(all) != 2 || all[0].CampaignID != 2 {
		t.Fatalf("limit/order not applied: %+v", all)
	}
}

func TestSnapshotsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SaveCommit(Snapshot{Height: 7, AppHash: []byte("hash"), State: []byte(`{"ok":true}`)}, nil); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	latest, err := reopened.Latest()
	if err != nil {
		t.Fatalf("Latest after reopen: %v", err)
	}
	if latest.Height != 7 || string(latest.AppHash) != "hash" {
		t.Fatalf("unexpected snapshot after reopen: %+v", latest)
	}
}

func TestBackupCurrentCreatesAndPrunesBackups(t *testing.T) {
	s, dir := newTestStore(t)

	if err := s.SaveCommit(Snapshot{Height: 1, AppHash: []byte{1}, State: []byte("{}")}, nil); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}

	backupPath, err := s.BackupCurrent(5)
	if err != nil {
		t.Fatalf("BackupCurrent: %v", err)
	}
	if filepath.Dir(backupPath) != filepath.Join(dir, "backups") {
		t.Fatalf("expected backup in backups directory, got %q", backupPath)
	}
	if filepath.Ext(backupPath) != ".db" || !strings.HasPrefix(filepath.Base(backupPath), "ledger-") {
		t.Fatalf("unexpected backup name %q", filepath.Base(backupPath))
	}

	for i := 0; i < 8; i++ {
		if _, err := s.BackupCurrent(5); err != nil {
			t.Fatalf("backup iteration %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("read backups: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 backups after pruning, got %d", len(entries))
	}

	listed, err := s.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(listed) != 5 {
		t.Fatalf("expected 5 listed backups, got %d", len(listed))
	}
	if listed[0].Timestamp.Before(listed[4].Timestamp) {
		t.Fatalf("backups not listed newest first: %+v", listed)
	}
	if listed[0].Size == 0 {
		t.Fatalf("expected non-empty backup file")
	}
}

func TestCorruptDatabaseRecoversFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SaveCommit(Snapshot{Height: 3, AppHash: []byte("h3"), State: []byte("{}")}, nil); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}
	if _, err := s.BackupCurrent(5); err != nil {
		t.Fatalf("BackupCurrent: %v", err)
	}
	s.Close()

	for _, p := range []string{path + "-wal", path + "-shm"} {
		os.Remove(p)
	}
	if err := os.WriteFile(path, []byte("this is not a sqlite database at all, just noise"), 0o600); err != nil {
		t.Fatalf("corrupt db: %v", err)
	}

	recovered, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore after corruption: %v", err)
	}
	defer recovered.Close()

	latest, err := recovered.Latest()
	if err != nil {
		t.Fatalf("Latest after recovery: %v", err)
	}
	if latest.Height != 3 {
		t.Fatalf("recovered height = %d, want 3", latest.Height)
	}
}
