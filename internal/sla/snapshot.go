package sla

import (
	"strings"
	"time"
)

// SLAApplied is the SLA currently attached to a ticket by the provider.
type SLAApplied struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Statistics carries the provider's assignment bookkeeping.
type Statistics struct {
	FirstAssignmentAt *time.Time `json:"firstAssignmentAt,omitempty"`
	LastAssignmentAt  *time.Time `json:"lastAssignmentAt,omitempty"`
}

// Assignee identifies the agent a ticket is assigned to.
type Assignee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TicketSnapshot is one observation of a ticket as returned by the ticketing
// provider.
type TicketSnapshot struct {
	ID               string      `json:"id"`
	SLAApplied       *SLAApplied `json:"slaApplied,omitempty"`
	LinkedSLAApplied *SLAApplied `json:"linkedSlaApplied,omitempty"`
	Statistics       *Statistics `json:"statistics,omitempty"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	SnoozedUntil     *time.Time  `json:"snoozedUntil,omitempty"`
	StateCategory    string      `json:"stateCategory,omitempty"`
	State            string      `json:"state,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
	Assignee         *Assignee   `json:"assignee,omitempty"`
	Subject          string      `json:"subject,omitempty"`
	CreatedAt        *time.Time  `json:"createdAt,omitempty"`
}

// AppliedSLA returns the SLA on the ticket itself, falling back to the SLA on
// the linked record. Entries without a status do not count.
func (s TicketSnapshot) AppliedSLA() (SLAApplied, bool) {
	for _, a := range []*SLAApplied{s.SLAApplied, s.LinkedSLAApplied} {
		if a != nil && strings.TrimSpace(a.Status) != "" {
			return *a, true
		}
	}
	return SLAApplied{}, false
}

// Paused reports whether deadline overruns should be held back: the ticket is
// snoozed into the future or waiting on the other party.
func (s TicketSnapshot) Paused(now time.Time) bool {
	if s.SnoozedUntil != nil && s.SnoozedUntil.After(now) {
		return true
	}
	cat := strings.ToLower(strings.TrimSpace(s.StateCategory))
	return strings.Contains(cat, "waiting") || cat == "pending" || cat == "on_hold"
}

func (s TicketSnapshot) assignee() Assignee {
	if s.Assignee == nil {
		return Assignee{}
	}
	return *s.Assignee
}

// HasTag reports whether the snapshot carries tag, case-insensitively.
func (s TicketSnapshot) HasTag(tag string) bool {
	if tag == "" {
		return false
	}
	for _, t := range s.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}
