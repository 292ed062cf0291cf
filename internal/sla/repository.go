package sla

import "context"

// RecordStore persists SLA records keyed by ticket id. Get reports found=false
// with a nil error for unknown tickets; Delete of an unknown ticket is not an
// error.
type RecordStore interface {
	Get(ctx context.Context, ticketID string) (Record, bool, error)
	Put(ctx context.Context, r Record) error
	Delete(ctx context.Context, ticketID string) error
	List(ctx context.Context) ([]Record, error)
}

// AssignmentStore persists assignment records keyed by ticket id.
type AssignmentStore interface {
	Get(ctx context.Context, ticketID string) (AssignmentRecord, bool, error)
	Put(ctx context.Context, r AssignmentRecord) error
	List(ctx context.Context) ([]AssignmentRecord, error)
}
