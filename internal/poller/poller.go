// Package poller drives SLA tracking: it pulls ticket snapshots on a fixed
// cadence during business hours and feeds them through the tracker one at a
// time.
package poller

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/sla-notifier/internal/events"
	"github.com/mark3748/sla-notifier/internal/metrics"
	"github.com/mark3748/sla-notifier/internal/sla"
)

// overlap widens each "updated since" window to absorb clock skew between
// this host and the ticketing provider.
const overlap = time.Minute

// Source returns ticket snapshots.
type Source interface {
	ListUpdated(ctx context.Context, since time.Time) ([]sla.TicketSnapshot, error)
	Get(ctx context.Context, id string) (sla.TicketSnapshot, error)
}

// Scheduler decides when passes may run.
type Scheduler interface {
	IsBusinessHours(t time.Time) bool
	NextBusinessHoursStart(from time.Time) time.Time
}

// Notifier tells an agent about a new assignment.
type Notifier interface {
	NotifyAssignment(ctx context.Context, rec sla.AssignmentRecord, subject string) error
}

// OptIns answers whether an agent wants assignment notices.
type OptIns interface {
	IsOptedIn(ctx context.Context, email string) (bool, error)
}

// Summary describes one pass.
type Summary struct {
	Fetched       int `json:"fetched"`
	Refreshed     int `json:"refreshed"`
	Processed     int `json:"processed"`
	Errors        int `json:"errors"`
	Violations    int `json:"violations"`
	Dispatched    int `json:"dispatched"`
	Assignments   int `json:"assignments"`
	Notifications int `json:"notifications"`
}

// Poller runs tracking passes.
type Poller struct {
	source      Source
	tracker     *sla.Tracker
	records     sla.RecordStore
	assignments *sla.AssignmentTracker
	sched       Scheduler
	notifier    Notifier
	optins      OptIns
	rdb         *redis.Client

	interval      time.Duration
	lookback      time.Duration
	ignoreHours   bool
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	lastPassStart time.Time
	// retry holds tickets that failed on an earlier pass.
	retry map[string]bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithAssignments enables assignment tracking.
func WithAssignments(a *sla.AssignmentTracker) Option { return func(p *Poller) { p.assignments = a } }

// WithNotifier sends assignment notices to agents in optins.
func WithNotifier(n Notifier, optins OptIns) Option {
	return func(p *Poller) { p.notifier, p.optins = n, optins }
}

// WithEvents publishes violation and assignment events on Redis.
func WithEvents(rdb *redis.Client) Option { return func(p *Poller) { p.rdb = rdb } }

// WithInterval sets the pause between passes.
func WithInterval(d time.Duration) Option { return func(p *Poller) { p.interval = d } }

// WithLookback sets how far back the first pass looks for updated tickets.
func WithLookback(d time.Duration) Option { return func(p *Poller) { p.lookback = d } }

// IgnoreBusinessHours runs passes around the clock.
func IgnoreBusinessHours() Option { return func(p *Poller) { p.ignoreHours = true } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

// New constructs a Poller. records must be the store the tracker writes to.
func New(source Source, tracker *sla.Tracker, records sla.RecordStore, sched Scheduler, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		tracker:  tracker,
		records:  records,
		sched:    sched,
		interval: time.Minute,
		lookback: 24 * time.Hour,
		now:      time.Now,
		sleep:    sleepCtx,
		retry:    map[string]bool{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run loops until ctx is cancelled. Outside business hours it sleeps until
// the next opening instead of polling.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.interval).Bool("ignore_business_hours", p.ignoreHours).Msg("poller started")
	for {
		now := p.now()
		if !p.ignoreHours && !p.sched.IsBusinessHours(now) {
			next := p.sched.NextBusinessHoursStart(now)
			wait := next.Sub(now)
			if wait <= 0 {
				wait = p.interval
			}
			metrics.PollPassesTotal.WithLabelValues("skipped").Inc()
			log.Info().Time("resume_at", next).Msg("outside business hours, pausing")
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("poll pass failed")
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// RunOnce performs one pass: tickets updated since the previous pass, then
// tracked tickets the listing did not include that still need attention:
// active records, whose deadline may pass while the ticket sits idle, missed
// records whose alert has not been delivered, and tickets that failed on an
// earlier pass. A failing ticket is logged, skipped and queued for the next
// pass.
func (p *Poller) RunOnce(ctx context.Context) (Summary, error) {
	began := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(began).Seconds()) }()
	start := p.now()

	since := p.lastPassStart
	if since.IsZero() {
		since = start.Add(-p.lookback)
	}
	snaps, err := p.source.ListUpdated(ctx, since.Add(-overlap))
	if err != nil {
		metrics.PollPassesTotal.WithLabelValues("failed").Inc()
		return Summary{}, err
	}

	var sum Summary
	sum.Fetched = len(snaps)
	seen := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		seen[s.ID] = true
		p.settle(s.ID, p.process(ctx, s, &sum))
	}

	tracked, err := p.records.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list tracked tickets")
	}
	var refresh []string
	for _, r := range tracked {
		if !seen[r.TicketID] && needsRefresh(r) {
			refresh = append(refresh, r.TicketID)
			seen[r.TicketID] = true
		}
	}
	retries := make([]string, 0, len(p.retry))
	for id := range p.retry {
		if !seen[id] {
			retries = append(retries, id)
		}
	}
	sort.Strings(retries)
	refresh = append(refresh, retries...)

	for _, id := range refresh {
		s, err := p.source.Get(ctx, id)
		switch {
		case errors.Is(err, sla.ErrNotFound):
			// gone upstream; an SLA-less snapshot clears the record
			s = sla.TicketSnapshot{ID: id, UpdatedAt: start}
		case err != nil:
			sum.Errors++
			metrics.TicketErrorsTotal.Inc()
			log.Error().Err(err).Str("ticket", id).Msg("refresh tracked ticket")
			p.settle(id, false)
			continue
		}
		sum.Refreshed++
		p.settle(id, p.process(ctx, s, &sum))
	}

	if after, err := p.records.List(ctx); err == nil {
		metrics.TrackedTickets.Set(float64(len(after)))
	}
	p.lastPassStart = start
	metrics.PollPassesTotal.WithLabelValues("completed").Inc()
	log.Info().
		Int("fetched", sum.Fetched).
		Int("refreshed", sum.Refreshed).
		Int("violations", sum.Violations).
		Int("dispatched", sum.Dispatched).
		Int("errors", sum.Errors).
		Msg("poll pass complete")
	return sum, nil
}

// needsRefresh reports whether a tracked record must be re-read even though
// the ticket did not change upstream.
func needsRefresh(r sla.Record) bool {
	switch r.SLAStatus {
	case sla.StatusActive:
		return true
	case sla.StatusMissed:
		return !r.HasAlert(sla.Violation{Kind: sla.AlertStatusMissed})
	}
	return false
}

// settle queues a failed ticket for the next pass or clears it once it
// processes cleanly.
func (p *Poller) settle(id string, ok bool) {
	if ok {
		delete(p.retry, id)
		return
	}
	p.retry[id] = true
}

// process runs one snapshot through the tracker and assignment tracking. It
// reports false if either step failed.
func (p *Poller) process(ctx context.Context, s sla.TicketSnapshot, sum *Summary) bool {
	sum.Processed++
	metrics.TicketsProcessedTotal.Inc()

	res, err := p.tracker.ProcessTicket(ctx, s)
	if err != nil {
		sum.Errors++
		metrics.TicketErrorsTotal.Inc()
		log.Error().Err(err).Str("ticket", s.ID).Msg("process ticket")
	}
	ok := err == nil
	if res.ViolationOccurred {
		sum.Violations++
		metrics.ViolationsTotal.WithLabelValues(string(res.Kind)).Inc()
		switch {
		case res.Dispatched:
			sum.Dispatched++
			metrics.AlertsDispatchedTotal.WithLabelValues(string(res.Kind)).Inc()
			p.publishViolation(ctx, s, res)
		case p.tracker.Alerting():
			metrics.DispatchFailuresTotal.Inc()
		}
	}

	if p.assignments != nil && !p.trackAssignment(ctx, s, sum) {
		ok = false
	}
	return ok
}

func (p *Poller) trackAssignment(ctx context.Context, s sla.TicketSnapshot, sum *Summary) bool {
	rec, changed, err := p.assignments.Track(ctx, s)
	if err != nil {
		sum.Errors++
		log.Error().Err(err).Str("ticket", s.ID).Msg("track assignment")
		return false
	}
	if !changed {
		return true
	}
	sum.Assignments++
	events.Publish(ctx, p.rdb, events.Event{Type: events.TypeAssignment, Data: events.Assignment{
		TicketID:      rec.TicketID,
		AssigneeEmail: rec.AssigneeEmail,
		AssignedAt:    rec.AssignedAt.UTC().Format(time.RFC3339),
	}})
	if p.notifier == nil || p.optins == nil || rec.AssigneeEmail == "" {
		return true
	}
	ok, err := p.optins.IsOptedIn(ctx, rec.AssigneeEmail)
	if err != nil {
		log.Warn().Err(err).Str("agent", rec.AssigneeEmail).Msg("opt-in lookup")
		return true
	}
	if !ok {
		return true
	}
	if err := p.notifier.NotifyAssignment(ctx, rec, s.Subject); err != nil {
		log.Error().Err(err).Str("ticket", s.ID).Str("agent", rec.AssigneeEmail).Msg("assignment notification")
		return true
	}
	sum.Notifications++
	metrics.AssignmentNotificationsTotal.Inc()
	return true
}

func (p *Poller) publishViolation(ctx context.Context, s sla.TicketSnapshot, res sla.Result) {
	v := events.Violation{TicketID: s.ID, Kind: string(res.Kind)}
	if res.Deadline != nil {
		v.Deadline = res.Deadline.UTC().Format(time.RFC3339)
	}
	if a, ok := s.AppliedSLA(); ok {
		v.SLAName = a.Name
	}
	if s.Assignee != nil {
		v.AssigneeEmail = s.Assignee.Email
	}
	events.Publish(ctx, p.rdb, events.Event{Type: events.TypeViolation, Data: v})
}
