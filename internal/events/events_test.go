package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	Publish(ctx, rdb, Event{Type: TypeViolation, Data: Violation{TicketID: "42", Kind: "deadline_violation"}})

	select {
	case msg := <-sub.Channel():
		var ev struct {
			Type string    `json:"type"`
			Data Violation `json:"data"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != TypeViolation || ev.Data.TicketID != "42" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message received")
	}
}

func TestPublishNilClient(t *testing.T) {
	Publish(context.Background(), nil, Event{Type: TypeAssignment})
}

func TestVisibleTo(t *testing.T) {
	decoded := Event{Type: TypeViolation, Data: map[string]interface{}{"assignee_email": "Ann@Example.com"}}
	tests := []struct {
		name  string
		ev    Event
		email string
		all   bool
		want  bool
	}{
		{"supervisor sees all", Event{Type: TypeViolation}, "", true, true},
		{"own decoded event", decoded, "ann@example.com", false, true},
		{"other agent", decoded, "bo@example.com", false, false},
		{"typed payload", Event{Data: Assignment{AssigneeEmail: "bo@example.com"}}, "bo@example.com", false, true},
		{"unattributed", Event{Data: Violation{TicketID: "1"}}, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.VisibleTo(tt.email, tt.all); got != tt.want {
				t.Fatalf("VisibleTo = %v, want %v", got, tt.want)
			}
		})
	}
}
