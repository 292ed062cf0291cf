package sla

import (
	"context"
	"errors"
	"sort"
	"time"
)

type memRecords struct {
	m      map[string]Record
	putErr error
	getErr error
	puts   int
}

func newMemRecords() *memRecords { return &memRecords{m: map[string]Record{}} }

func (s *memRecords) Get(_ context.Context, id string) (Record, bool, error) {
	if s.getErr != nil {
		return Record{}, false, s.getErr
	}
	r, ok := s.m[id]
	return r, ok, nil
}

func (s *memRecords) Put(_ context.Context, r Record) error {
	s.puts++
	s.m[r.TicketID] = r
	return s.putErr
}

func (s *memRecords) Delete(_ context.Context, id string) error {
	delete(s.m, id)
	return nil
}

func (s *memRecords) List(context.Context) ([]Record, error) {
	out := make([]Record, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out, nil
}

type memAssignments struct{ m map[string]AssignmentRecord }

func newMemAssignments() *memAssignments { return &memAssignments{m: map[string]AssignmentRecord{}} }

func (s *memAssignments) Get(_ context.Context, id string) (AssignmentRecord, bool, error) {
	r, ok := s.m[id]
	return r, ok, nil
}

func (s *memAssignments) Put(_ context.Context, r AssignmentRecord) error {
	s.m[r.TicketID] = r
	return nil
}

func (s *memAssignments) List(context.Context) ([]AssignmentRecord, error) {
	out := make([]AssignmentRecord, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, r)
	}
	return out, nil
}

type recordingDispatcher struct {
	alerts []Alert
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a Alert) error {
	if d.err != nil {
		return d.err
	}
	d.alerts = append(d.alerts, a)
	return nil
}

var errBoom = errors.New("boom")

func tp(t time.Time) *time.Time { return &t }

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }
