package store

import (
	"context"
	"testing"

	"github.com/mark3748/sla-notifier/internal/sla"
)

func TestOpenFileBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	s, err := Open(ctx, Options{Backend: "file", DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Records.Put(ctx, sla.Record{TicketID: "7"}); err != nil {
		t.Fatal(err)
	}
	again, err := Open(ctx, Options{Backend: "file", DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if _, found, _ := again.Records.Get(ctx, "7"); !found {
		t.Fatalf("record not persisted")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "sqlite"}); err == nil {
		t.Fatalf("expected error")
	}
}
