package sla

import (
	"context"
	"fmt"
	"time"
)

// AssignmentTracker owns writes to the assignment table. Records are written
// on first assignment and whenever the assignment time changes.
type AssignmentTracker struct {
	store AssignmentStore
	now   func() time.Time
}

func NewAssignmentTracker(store AssignmentStore) *AssignmentTracker {
	return &AssignmentTracker{store: store, now: time.Now}
}

// Track records the snapshot's assignment. changed is true when a new or
// reassigned record was written. Snapshots without an assignee or without an
// assignment statistic are ignored; the last-modified time is too noisy to
// detect reassignment.
func (a *AssignmentTracker) Track(ctx context.Context, s TicketSnapshot) (rec AssignmentRecord, changed bool, err error) {
	assignee := s.assignee()
	if assignee.Email == "" && assignee.Name == "" {
		return AssignmentRecord{}, false, nil
	}
	at, ok := latestAssignment(s)
	if !ok {
		return AssignmentRecord{}, false, nil
	}
	prev, found, err := a.store.Get(ctx, s.ID)
	if err != nil {
		return AssignmentRecord{}, false, fmt.Errorf("load assignment %s: %w", s.ID, err)
	}
	if found && prev.AssignedAt.Equal(at) {
		return prev, false, nil
	}
	rec = AssignmentRecord{
		TicketID:        s.ID,
		AssigneeName:    assignee.Name,
		AssigneeEmail:   assignee.Email,
		AssignedAt:      at,
		TicketCreatedAt: s.CreatedAt,
		TrackedAt:       a.now(),
	}
	if err := a.store.Put(ctx, rec); err != nil {
		return rec, true, fmt.Errorf("save assignment %s: %w", s.ID, err)
	}
	return rec, true, nil
}

func latestAssignment(s TicketSnapshot) (time.Time, bool) {
	st := s.Statistics
	if st == nil {
		return time.Time{}, false
	}
	if st.LastAssignmentAt != nil && !st.LastAssignmentAt.IsZero() {
		return *st.LastAssignmentAt, true
	}
	if st.FirstAssignmentAt != nil && !st.FirstAssignmentAt.IsZero() {
		return *st.FirstAssignmentAt, true
	}
	return time.Time{}, false
}
