package db

import (
	"testing"
	"time"

	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

func testEntry(id, owner, date string, workItemID, minutes int, status entry.SyncStatus, createdAt int64) *entry.TimeEntry {
	return &entry.TimeEntry{
		ID:              id,
		Owner:           owner,
		WorkItemID:      workItemID,
		Date:            date,
		DurationMinutes: minutes,
		SyncStatus:      status,
		CreatedAt:       createdAt,
		LastModifiedAt:  createdAt,
	}
}

func TestInsertAndGetEntry(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	comment := "pairing on the parser"
	e := testEntry("01A", "ana", "2026-01-19", 4, 90, entry.StatusPending, time.Now().Unix())
	e.Comment = &comment

	if err := InsertEntry(database, e); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	got, err := GetEntry(database, "01A")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Owner != "ana" || got.WorkItemID != 4 || got.DurationMinutes != 90 {
		t.Errorf("GetEntry = %+v, want inserted values", got)
	}
	if got.Comment == nil || *got.Comment != comment {
		t.Errorf("Comment = %v, want %q", got.Comment, comment)
	}
	if got.SyncStatus != entry.StatusPending {
		t.Errorf("SyncStatus = %q, want pending", got.SyncStatus)
	}
	if got.ClampedHours != nil {
		t.Errorf("ClampedHours = %v, want nil", got.ClampedHours)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	_, err = GetEntry(database, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetEntry(missing) = %v, want NOT_FOUND", err)
	}
}

func TestListPending_CreationOrder(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	// Inserted out of creation order on purpose.
	for _, e := range []*entry.TimeEntry{
		testEntry("C", "ana", "2026-01-19", 4, 30, entry.StatusPending, 300),
		testEntry("A", "ana", "2026-01-19", 4, 30, entry.StatusPending, 100),
		testEntry("B", "ana", "2026-01-19", 5, 30, entry.StatusPending, 200),
		testEntry("S", "ana", "2026-01-19", 4, 30, entry.StatusSynced, 50),
	} {
		if err := InsertEntry(database, e); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}

	pending, err := ListPending(database)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len(pending) = %d, want 3", len(pending))
	}
	wantOrder := []string{"A", "B", "C"}
	for i, want := range wantOrder {
		if pending[i].ID != want {
			t.Errorf("pending[%d].ID = %q, want %q", i, pending[i].ID, want)
		}
	}
}

func TestListByDateRange(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	for _, e := range []*entry.TimeEntry{
		testEntry("1", "ana", "2026-01-18", 4, 60, entry.StatusSynced, 1),
		testEntry("2", "ana", "2026-01-19", 4, 60, entry.StatusSynced, 2),
		testEntry("3", "ana", "2026-01-25", 4, 60, entry.StatusSynced, 3),
		testEntry("4", "ana", "2026-01-26", 4, 60, entry.StatusSynced, 4),
		testEntry("5", "bruno", "2026-01-19", 4, 60, entry.StatusSynced, 5),
	} {
		if err := InsertEntry(database, e); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}

	got, err := ListByDateRange(database, "ana", "2026-01-19", "2026-01-25")
	if err != nil {
		t.Fatalf("ListByDateRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (range inclusive, other owners excluded)", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("range = [%s %s], want [2 3]", got[0].ID, got[1].ID)
	}
}

func TestUpdateEntryStatus(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	e := testEntry("X", "ana", "2026-01-19", 4, 60, entry.StatusPending, 1)
	if err := InsertEntry(database, e); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	if err := UpdateEntryStatus(database, "X", entry.StatusSynced); err != nil {
		t.Fatalf("UpdateEntryStatus failed: %v", err)
	}
	got, err := GetEntry(database, "X")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.SyncStatus != entry.StatusSynced {
		t.Errorf("SyncStatus = %q, want synced", got.SyncStatus)
	}

	if err := UpdateEntryStatus(database, "missing", entry.StatusSynced); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateEntryStatus(missing) = %v, want NOT_FOUND", err)
	}
}

func TestDeleteEntryIfCancellable(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	if err := InsertEntry(database, testEntry("P", "ana", "2026-01-19", 4, 60, entry.StatusPending, 1)); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	if err := InsertEntry(database, testEntry("S", "ana", "2026-01-19", 4, 60, entry.StatusSynced, 2)); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	ok, err := DeleteEntryIfCancellable(database, "P")
	if err != nil {
		t.Fatalf("DeleteEntryIfCancellable failed: %v", err)
	}
	if !ok {
		t.Error("pending entry should be cancellable")
	}

	// Synced entries are immutable history.
	ok, err = DeleteEntryIfCancellable(database, "S")
	if err != nil {
		t.Fatalf("DeleteEntryIfCancellable failed: %v", err)
	}
	if ok {
		t.Error("synced entry must not be cancellable")
	}
}

func TestUpsertAndGetWorkItem(t *testing.T) {
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer database.Close()

	item := &entry.WorkItem{ID: 4, Title: "implement parser", Type: entry.TypeTask, CompletedWork: 2, RemainingWork: 6, LastSyncedAt: 100}
	if err := UpsertWorkItem(database, item); err != nil {
		t.Fatalf("UpsertWorkItem failed: %v", err)
	}

	got, err := GetWorkItem(database, 4)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if got.Title != "implement parser" || got.Type != entry.TypeTask || got.RemainingWork != 6 {
		t.Errorf("GetWorkItem = %+v, want inserted snapshot", got)
	}

	// Upsert replaces.
	item.CompletedWork = 3
	item.RemainingWork = 5
	if err := UpsertWorkItem(database, item); err != nil {
		t.Fatalf("second UpsertWorkItem failed: %v", err)
	}
	got, err = GetWorkItem(database, 4)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if got.CompletedWork != 3 || got.RemainingWork != 5 {
		t.Errorf("after upsert: completed=%v remaining=%v, want 3/5", got.CompletedWork, got.RemainingWork)
	}
}
