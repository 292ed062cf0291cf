package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Alert is handed to a Dispatcher for delivery.
type Alert struct {
	Violation Violation
	Record    Record
}

// Dispatcher delivers violation alerts. A nil error means the alert was sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// ElapsedCalculator reports business-hours elapsed time between two instants.
type ElapsedCalculator interface {
	BusinessElapsed(start, end time.Time) time.Duration
}

// Result is the outcome of processing one snapshot.
type Result struct {
	ViolationOccurred bool       `json:"violationOccurred"`
	Kind              AlertKind  `json:"kind,omitempty"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	// Dispatched is true when the alert was delivered and recorded.
	Dispatched bool `json:"dispatched"`
}

// Tracker keeps SLA records current and emits at most one alert per
// violation occurrence.
type Tracker struct {
	records        RecordStore
	policy         *Policy
	dispatcher     Dispatcher
	elapsed        ElapsedCalculator
	unwarrantedTag string
	now            func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDispatcher sets the alert channel. Without one, violations are reported
// in the Result but no alert entry is recorded.
func WithDispatcher(d Dispatcher) Option { return func(t *Tracker) { t.dispatcher = d } }

// WithElapsed enables the business-hours elapsed figure on records.
func WithElapsed(e ElapsedCalculator) Option { return func(t *Tracker) { t.elapsed = e } }

// WithUnwarrantedTag sets the tag that excludes a record from hit-rate.
func WithUnwarrantedTag(tag string) Option { return func(t *Tracker) { t.unwarrantedTag = tag } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// NewTracker constructs a Tracker.
func NewTracker(records RecordStore, policy *Policy, opts ...Option) *Tracker {
	t := &Tracker{
		records:        records,
		policy:         policy,
		unwarrantedTag: "sla_unwarranted",
		now:            time.Now,
	}
	if t.policy == nil {
		t.policy = NewPolicy(nil)
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Alerting reports whether a dispatcher is configured.
func (t *Tracker) Alerting() bool { return t.dispatcher != nil }

// ProcessTicket reconciles the tracking record of one ticket against a fresh
// snapshot, dispatching an alert for a new violation. The record is written
// on every pass. A store read failure leaves the prior state untouched.
func (t *Tracker) ProcessTicket(ctx context.Context, s TicketSnapshot) (Result, error) {
	now := t.now()
	obs, ok := Observe(s, t.policy, now)
	if !ok {
		if err := t.records.Delete(ctx, s.ID); err != nil {
			return Result{}, fmt.Errorf("delete sla record %s: %w", s.ID, err)
		}
		return Result{}, nil
	}
	if obs.AssignedAt == nil {
		log.Warn().Str("ticket", s.ID).Msg("no assignment timestamp, skipping deadline check")
	} else if obs.AssignmentSource == SourceUpdatedAt {
		log.Debug().Str("ticket", s.ID).Msg("assignment time taken from last update")
	}

	prior, found, err := t.records.Get(ctx, s.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load sla record %s: %w", s.ID, err)
	}
	var priorPtr *Record
	if found {
		priorPtr = &prior
	}

	rec := t.buildRecord(s, obs, priorPtr, now)
	var res Result
	if v, fired := Detect(obs, priorPtr, now); fired {
		res = Result{ViolationOccurred: true, Kind: v.Kind, Deadline: v.Deadline}
		if t.dispatcher != nil {
			if err := t.dispatcher.Dispatch(ctx, Alert{Violation: v, Record: rec}); err != nil {
				log.Error().Err(err).Str("ticket", s.ID).Str("kind", string(v.Kind)).Msg("dispatch sla alert")
			} else {
				rec.AlertHistory = append(rec.AlertHistory, AlertEntry{
					Kind:               v.Kind,
					EmittedAt:          now,
					DeadlineAtEmission: v.Deadline,
					StatusAtEmission:   string(obs.Status),
				})
				res.Dispatched = true
			}
		}
	}

	if err := t.records.Put(ctx, rec); err != nil {
		return res, fmt.Errorf("save sla record %s: %w", s.ID, err)
	}
	return res, nil
}

func (t *Tracker) buildRecord(s TicketSnapshot, obs Observation, prior *Record, now time.Time) Record {
	a := s.assignee()
	rec := Record{
		TicketID:           s.ID,
		SLAStatus:          obs.Status,
		SLAName:            obs.SLA.Name,
		SLAType:            obs.Bucket,
		AssignedAt:         obs.AssignedAt,
		AssignmentSource:   obs.AssignmentSource,
		SLADurationSeconds: int64(obs.Duration / time.Second),
		Deadline:           obs.Deadline,
		IsPaused:           obs.Paused,
		Tags:               append([]string(nil), s.Tags...),
		HasUnwarrantedTag:  s.HasTag(t.unwarrantedTag),
		AssigneeName:       a.Name,
		AssigneeEmail:      a.Email,
		Subject:            s.Subject,
		State:              s.State,
		TicketCreatedAt:    s.CreatedAt,
		UpdatedAt:          now,
	}
	if prior != nil {
		rec.AlertHistory = append([]AlertEntry(nil), prior.AlertHistory...)
	}
	// HitAt is only known when the transition to hit was observed. A ticket
	// first seen already hit keeps a nil HitAt and stays out of time-to-hit.
	if obs.Status == StatusHit && prior != nil {
		rec.HitAt = &now
		if prior.SLAStatus == StatusHit {
			rec.HitAt = prior.HitAt
		}
	}
	switch {
	case obs.Status == StatusHit && rec.HitAt == nil && prior != nil:
		rec.BusinessElapsedSeconds = prior.BusinessElapsedSeconds
	case t.elapsed != nil && obs.AssignedAt != nil:
		end := now
		if rec.HitAt != nil {
			end = *rec.HitAt
		}
		rec.BusinessElapsedSeconds = int64(t.elapsed.BusinessElapsed(*obs.AssignedAt, end) / time.Second)
	}
	return rec
}
