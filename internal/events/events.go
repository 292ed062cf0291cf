// Package events fans out worker activity to API processes over Redis
// pub/sub.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Channel is the Redis pub/sub channel events travel on.
const Channel = "sla_events"

// Event types.
const (
	TypeViolation  = "sla_violation"
	TypeAssignment = "ticket_assigned"
)

// Event is one message broadcast to subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Violation is the payload of a TypeViolation event.
type Violation struct {
	TicketID      string `json:"ticket_id"`
	Kind          string `json:"kind"`
	Deadline      string `json:"deadline,omitempty"`
	SLAName       string `json:"sla_name,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
}

// Assignment is the payload of a TypeAssignment event.
type Assignment struct {
	TicketID      string `json:"ticket_id"`
	AssigneeEmail string `json:"assignee_email"`
	AssignedAt    string `json:"assigned_at"`
}

// Publish sends ev on Channel. A nil client disables publishing.
func Publish(ctx context.Context, rdb *redis.Client, ev Event) {
	if rdb == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("marshal event")
		return
	}
	if err := rdb.Publish(ctx, Channel, b).Err(); err != nil {
		log.Warn().Err(err).Str("type", ev.Type).Msg("publish event")
	}
}

// VisibleTo reports whether a viewer should see ev. Viewers with all set see
// every event; others only see events naming them as assignee.
func (ev Event) VisibleTo(email string, all bool) bool {
	if all {
		return true
	}
	var assignee string
	switch d := ev.Data.(type) {
	case map[string]interface{}:
		assignee, _ = d["assignee_email"].(string)
	case Violation:
		assignee = d.AssigneeEmail
	case Assignment:
		assignee = d.AssigneeEmail
	}
	return assignee != "" && strings.EqualFold(assignee, email)
}
