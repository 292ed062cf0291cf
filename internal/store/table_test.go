package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3748/sla-notifier/internal/sla"
)

func TestFileRecordsPersistAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewFileRecords(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	deadline := time.Date(2024, 7, 1, 9, 5, 0, 0, time.UTC)
	if err := s.Put(ctx, sla.Record{TicketID: "42", SLAStatus: sla.StatusActive, Deadline: &deadline}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, sla.Record{TicketID: "7", SLAStatus: sla.StatusHit}); err != nil {
		t.Fatalf("put: %v", err)
	}

	s2, err := NewFileRecords(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r, ok, err := s2.Get(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if r.Deadline == nil || !r.Deadline.Equal(deadline) {
		t.Fatalf("deadline not persisted: %v", r.Deadline)
	}
	all, _ := s2.List(ctx)
	if len(all) != 2 || all[0].TicketID != "42" || all[1].TicketID != "7" {
		t.Fatalf("list order: %+v", all)
	}
}

func TestFileRecordsDelete(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, _ := NewFileRecords(dir)
	_ = s.Put(ctx, sla.Record{TicketID: "1"})
	if err := s.Delete(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete of unknown id should be a no-op: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "1"); ok {
		t.Fatalf("record still present")
	}
	s2, _ := NewFileRecords(dir)
	if _, ok, _ := s2.Get(ctx, "1"); ok {
		t.Fatalf("delete not persisted")
	}
}

func TestOpenTableCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, slaTrackingFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileRecords(dir)
	if err != nil {
		t.Fatalf("corrupt file should not fail open: %v", err)
	}
	if all, _ := s.List(context.Background()); len(all) != 0 {
		t.Fatalf("expected empty table, got %d", len(all))
	}
	entries, _ := os.ReadDir(dir)
	moved := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), slaTrackingFile+".corrupt-") {
			moved = true
		}
	}
	if !moved {
		t.Fatalf("corrupt file not moved aside: %v", entries)
	}
}

func TestTablePutFailureKeepsMemory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	tbl, err := OpenTable[int](filepath.Join(dir, "t.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Put("a", 1); err == nil {
		t.Fatalf("expected write error")
	}
	if v, ok := tbl.Get("a"); !ok || v != 1 {
		t.Fatalf("in-memory row lost: %v %v", v, ok)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Put("b", 2); err != nil {
		t.Fatalf("put after recovery: %v", err)
	}
	again, _ := OpenTable[int](filepath.Join(dir, "t.json"))
	if again.Len() != 2 {
		t.Fatalf("expected both rows on disk, got %d", again.Len())
	}
}

func TestTableReloadSeesOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	reader, _ := OpenTable[string](path)
	writer, _ := OpenTable[string](path)
	if err := writer.Put("k", "v1"); err != nil {
		t.Fatal(err)
	}
	// force a distinct mtime on filesystems with coarse timestamps
	past := time.Now().Add(-time.Minute)
	_ = os.Chtimes(path, past, past)
	if err := reader.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, ok := reader.Get("k"); !ok || v != "v1" {
		t.Fatalf("reader did not see write: %q %v", v, ok)
	}
}

func TestTableReloadKeepsRowsOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	tbl, _ := OpenTable[string](path)
	_ = tbl.Put("k", "v")
	if err := os.WriteFile(path, []byte("]"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	_ = os.Chtimes(path, past, past)
	if err := tbl.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if v, ok := tbl.Get("k"); !ok || v != "v" {
		t.Fatalf("rows dropped on bad reload")
	}
}

func TestFileAssignments(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, _ := NewFileAssignments(dir)
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, sla.AssignmentRecord{TicketID: "9", AssigneeEmail: "a@example.com", AssignedAt: at}); err != nil {
		t.Fatal(err)
	}
	s2, _ := NewFileAssignments(dir)
	r, ok, _ := s2.Get(ctx, "9")
	if !ok || !r.AssignedAt.Equal(at) || r.AssigneeEmail != "a@example.com" {
		t.Fatalf("unexpected: %+v %v", r, ok)
	}
}
