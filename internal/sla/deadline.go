package sla

import (
	"errors"
	"time"
)

// ErrNoAssignment is returned when a snapshot carries no usable assignment
// timestamp.
var ErrNoAssignment = errors.New("no assignment timestamp")

// AssignmentSource names where an assignment timestamp came from.
type AssignmentSource string

const (
	SourceFirstAssignment AssignmentSource = "first_assignment"
	SourceLastAssignment  AssignmentSource = "last_assignment"
	// SourceUpdatedAt is the generic last-modified time and the least reliable.
	SourceUpdatedAt AssignmentSource = "updated_at"
)

// ResolveAssignedAt picks the assignment instant from the first-assignment
// statistic, then the last-assignment statistic, then the ticket's
// last-modified time.
func ResolveAssignedAt(s TicketSnapshot) (time.Time, AssignmentSource, error) {
	if st := s.Statistics; st != nil {
		if st.FirstAssignmentAt != nil && !st.FirstAssignmentAt.IsZero() {
			return *st.FirstAssignmentAt, SourceFirstAssignment, nil
		}
		if st.LastAssignmentAt != nil && !st.LastAssignmentAt.IsZero() {
			return *st.LastAssignmentAt, SourceLastAssignment, nil
		}
	}
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt, SourceUpdatedAt, nil
	}
	return time.Time{}, "", ErrNoAssignment
}

// ComputeDeadline returns assignedAt plus d. Business hours are deliberately
// not applied here.
func ComputeDeadline(assignedAt time.Time, d time.Duration) time.Time {
	return assignedAt.Add(d)
}
