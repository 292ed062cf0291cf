package sla

import (
	"time"
)

// Observation is what a single snapshot says about a ticket's SLA.
type Observation struct {
	TicketID         string
	SLA              SLAApplied
	Status           Status
	Bucket           Bucket
	Duration         time.Duration
	AssignedAt       *time.Time
	AssignmentSource AssignmentSource
	Deadline         *time.Time
	Paused           bool
}

// Violation is a detected, not yet alerted, SLA violation.
type Violation struct {
	Kind     AlertKind
	Status   Status
	Deadline *time.Time
}

// Observe derives the SLA observation of a snapshot. ok is false when the
// snapshot carries no SLA status. A snapshot without any assignment timestamp
// yields an observation with nil AssignedAt and Deadline.
func Observe(s TicketSnapshot, p *Policy, now time.Time) (obs Observation, ok bool) {
	applied, ok := s.AppliedSLA()
	if !ok {
		return Observation{}, false
	}
	obs = Observation{
		TicketID: s.ID,
		SLA:      applied,
		Status:   ParseStatus(applied.Status),
		Bucket:   p.Classify(applied.Name),
		Duration: p.ResolveDuration(applied.Name),
		Paused:   s.Paused(now),
	}
	if at, src, err := ResolveAssignedAt(s); err == nil {
		deadline := ComputeDeadline(at, obs.Duration)
		obs.AssignedAt = &at
		obs.AssignmentSource = src
		obs.Deadline = &deadline
	}
	return obs, true
}

// Detect decides whether obs represents a violation that prior has not yet
// alerted on. A missed status from the provider is authoritative. An active,
// unpaused SLA past its deadline is a proactive violation.
func Detect(obs Observation, prior *Record, now time.Time) (Violation, bool) {
	switch obs.Status {
	case StatusMissed:
		v := Violation{Kind: AlertStatusMissed, Status: obs.Status, Deadline: obs.Deadline}
		if prior.HasAlert(v) {
			return Violation{}, false
		}
		return v, true
	case StatusActive:
		if obs.Paused || obs.Deadline == nil || !now.After(*obs.Deadline) {
			return Violation{}, false
		}
		v := Violation{Kind: AlertDeadlineViolation, Status: obs.Status, Deadline: obs.Deadline}
		if prior.HasAlert(v) {
			return Violation{}, false
		}
		return v, true
	}
	return Violation{}, false
}
