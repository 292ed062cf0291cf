package sla

import (
	"context"
	"fmt"
	"time"
)

// Reporter is the read side over both tables.
type Reporter struct {
	records     RecordStore
	assignments AssignmentStore
	now         func() time.Time
}

// NewReporter returns a Reporter. assignments may be nil.
func NewReporter(records RecordStore, assignments AssignmentStore) *Reporter {
	return &Reporter{records: records, assignments: assignments, now: time.Now}
}

// GetAllTrackedTickets returns the current records matching f.
func (r *Reporter) GetAllTrackedTickets(ctx context.Context, f Filter) ([]Record, error) {
	all, err := r.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sla records: %w", err)
	}
	return FilterRecords(all, f), nil
}

// GetTrackedTicket returns one record or ErrNotFound.
func (r *Reporter) GetTrackedTicket(ctx context.Context, ticketID string) (Record, error) {
	rec, found, err := r.records.Get(ctx, ticketID)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// GetAssignments returns assignment records in the filter's date range and
// agent.
func (r *Reporter) GetAssignments(ctx context.Context, f Filter) ([]AssignmentRecord, error) {
	if r.assignments == nil {
		return []AssignmentRecord{}, nil
	}
	all, err := r.assignments.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	out := make([]AssignmentRecord, 0, len(all))
	for _, a := range all {
		if f.Agent != "" && !matchesAgent(f.Agent, a.AssigneeName, a.AssigneeEmail) {
			continue
		}
		if !f.inRange(a.AssignedAt) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// GetStats computes compliance stats over the records matching f.
func (r *Reporter) GetStats(ctx context.Context, f Filter) (Stats, error) {
	recs, err := r.GetAllTrackedTickets(ctx, f)
	if err != nil {
		return Stats{}, err
	}
	assignments, err := r.GetAssignments(ctx, f)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(recs, assignments, r.now()), nil
}
