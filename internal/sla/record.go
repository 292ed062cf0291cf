package sla

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by stores for unknown ticket ids.
var ErrNotFound = errors.New("not found")

// Status is the SLA status reported by the provider.
type Status string

const (
	StatusActive Status = "active"
	StatusMissed Status = "missed"
	StatusHit    Status = "hit"
)

// ParseStatus normalizes a provider status string.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// AlertKind identifies why an alert was emitted.
type AlertKind string

const (
	AlertStatusMissed      AlertKind = "status_missed"
	AlertDeadlineViolation AlertKind = "deadline_violation"
)

// AlertEntry records one delivered alert. Entries are the dedup keys for
// future passes.
type AlertEntry struct {
	Kind               AlertKind  `json:"kind"`
	EmittedAt          time.Time  `json:"emittedAt"`
	DeadlineAtEmission *time.Time `json:"deadlineAtEmission"`
	StatusAtEmission   string     `json:"statusAtEmission"`
}

// Record is the persisted SLA tracking state of one ticket.
type Record struct {
	TicketID               string           `json:"ticketId"`
	SLAStatus              Status           `json:"slaStatus"`
	SLAName                string           `json:"slaName"`
	SLAType                Bucket           `json:"slaType"`
	AssignedAt             *time.Time       `json:"assignedAt"`
	AssignmentSource       AssignmentSource `json:"assignmentSource,omitempty"`
	SLADurationSeconds     int64            `json:"slaDuration"`
	Deadline               *time.Time       `json:"deadline"`
	IsPaused               bool             `json:"isPaused"`
	AlertHistory           []AlertEntry     `json:"alertHistory"`
	Tags                   []string         `json:"tags"`
	HasUnwarrantedTag      bool             `json:"hasUnwarrantedTag"`
	AssigneeName           string           `json:"assigneeName,omitempty"`
	AssigneeEmail          string           `json:"assigneeEmail,omitempty"`
	Subject                string           `json:"subject,omitempty"`
	State                  string           `json:"state,omitempty"`
	TicketCreatedAt        *time.Time       `json:"createdAt,omitempty"`
	BusinessElapsedSeconds int64            `json:"businessElapsedSeconds"`
	HitAt                  *time.Time       `json:"hitAt,omitempty"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

// HasAlert reports whether an entry with the dedup key of v already exists:
// (kind, deadline) for deadline violations, (kind, missed) for status misses.
func (r *Record) HasAlert(v Violation) bool {
	if r == nil {
		return false
	}
	for _, e := range r.AlertHistory {
		if e.Kind != v.Kind {
			continue
		}
		switch v.Kind {
		case AlertStatusMissed:
			if ParseStatus(e.StatusAtEmission) == StatusMissed {
				return true
			}
		case AlertDeadlineViolation:
			if sameInstant(e.DeadlineAtEmission, v.Deadline) {
				return true
			}
		}
	}
	return false
}

// LastAlert returns the most recent alert entry, if any.
func (r *Record) LastAlert() (AlertEntry, bool) {
	if r == nil || len(r.AlertHistory) == 0 {
		return AlertEntry{}, false
	}
	return r.AlertHistory[len(r.AlertHistory)-1], true
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// AssignmentRecord remembers the latest observed assignment of a ticket,
// whether or not it carries an SLA.
type AssignmentRecord struct {
	TicketID        string     `json:"ticketId"`
	AssigneeName    string     `json:"assigneeName"`
	AssigneeEmail   string     `json:"assigneeEmail"`
	AssignedAt      time.Time  `json:"assignedAt"`
	TicketCreatedAt *time.Time `json:"ticketCreatedAt,omitempty"`
	TrackedAt       time.Time  `json:"trackedAt"`
}
