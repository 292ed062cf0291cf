package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/mark3748/sla-notifier/internal/sla"
)

const (
	slaTrackingFile        = "sla_tracking.json"
	assignmentTrackingFile = "assignment_tracking.json"
)

// FileRecords is the file-backed sla.RecordStore.
type FileRecords struct{ t *Table[sla.Record] }

// NewFileRecords opens the SLA tracking table under dir.
func NewFileRecords(dir string) (*FileRecords, error) {
	t, err := OpenTable[sla.Record](filepath.Join(dir, slaTrackingFile))
	if err != nil {
		return nil, err
	}
	return &FileRecords{t: t}, nil
}

func (s *FileRecords) Get(_ context.Context, id string) (sla.Record, bool, error) {
	r, ok := s.t.Get(id)
	return r, ok, nil
}

func (s *FileRecords) Put(_ context.Context, r sla.Record) error { return s.t.Put(r.TicketID, r) }

func (s *FileRecords) Delete(_ context.Context, id string) error { return s.t.Delete(id) }

func (s *FileRecords) List(context.Context) ([]sla.Record, error) { return s.t.Values(), nil }

// Watch reloads the table from disk every interval.
func (s *FileRecords) Watch(ctx context.Context, interval time.Duration) { s.t.Watch(ctx, interval) }

// FileAssignments is the file-backed sla.AssignmentStore.
type FileAssignments struct{ t *Table[sla.AssignmentRecord] }

// NewFileAssignments opens the assignment tracking table under dir.
func NewFileAssignments(dir string) (*FileAssignments, error) {
	t, err := OpenTable[sla.AssignmentRecord](filepath.Join(dir, assignmentTrackingFile))
	if err != nil {
		return nil, err
	}
	return &FileAssignments{t: t}, nil
}

func (s *FileAssignments) Get(_ context.Context, id string) (sla.AssignmentRecord, bool, error) {
	r, ok := s.t.Get(id)
	return r, ok, nil
}

func (s *FileAssignments) Put(_ context.Context, r sla.AssignmentRecord) error {
	return s.t.Put(r.TicketID, r)
}

func (s *FileAssignments) List(context.Context) ([]sla.AssignmentRecord, error) {
	return s.t.Values(), nil
}

// Watch reloads the table from disk every interval.
func (s *FileAssignments) Watch(ctx context.Context, interval time.Duration) {
	s.t.Watch(ctx, interval)
}
