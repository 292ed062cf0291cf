package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mark3748/sla-notifier/internal/optin"
	"github.com/mark3748/sla-notifier/internal/sla"
	"github.com/mark3748/sla-notifier/internal/store"
)

func newDeps(t *testing.T) deps {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	recs, err := store.NewFileRecords(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = recs.Put(context.Background(), sla.Record{TicketID: "5", SLAStatus: sla.StatusHit})
	return deps{optins: optin.New(rdb, ""), reporter: sla.NewReporter(recs, nil)}
}

func TestOptInCommands(t *testing.T) {
	d := newDeps(t)
	ctx := context.Background()
	var out bytes.Buffer
	if err := run(ctx, []string{"optin", "add", "Ann@Example.com"}, &out, d); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := run(ctx, []string{"optin", "list"}, &out, d); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "ann@example.com" {
		t.Fatalf("unexpected list %q", out.String())
	}
	if err := run(ctx, []string{"optin", "remove", "ann@example.com"}, &out, d); err != nil {
		t.Fatal(err)
	}
	if err := run(ctx, []string{"optin", "add"}, &out, d); err == nil {
		t.Fatalf("expected error without email")
	}
}

func TestStatsAndTicket(t *testing.T) {
	d := newDeps(t)
	ctx := context.Background()
	var out bytes.Buffer
	if err := run(ctx, []string{"stats"}, &out, d); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"total": 1`) {
		t.Fatalf("unexpected stats %s", out.String())
	}
	out.Reset()
	if err := run(ctx, []string{"ticket", "5"}, &out, d); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"ticketId": "5"`) {
		t.Fatalf("unexpected record %s", out.String())
	}
	if err := run(ctx, []string{"ticket", "6"}, &out, d); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}, deps{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := run(context.Background(), []string{"optin", "list"}, &bytes.Buffer{}, deps{}); err == nil {
		t.Fatalf("expected error without redis")
	}
}
