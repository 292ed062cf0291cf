package sla

import (
	"sort"
	"strings"
	"time"
)

const (
	// criticalWindow is the remaining time under which an active SLA is critical.
	criticalWindow = 5 * time.Minute
	// Unattributed labels records without an assignee in breakdowns.
	Unattributed = "unattributed"
)

// Filter narrows records for reporting. Zero fields match everything. The
// date range applies to the assignment time, or the last update when the
// record has none.
type Filter struct {
	From    *time.Time
	To      *time.Time
	Agent   string
	Status  Status
	SLAType Bucket
}

// Match reports whether r passes f.
func (f Filter) Match(r Record) bool {
	if f.Status != "" && r.SLAStatus != f.Status {
		return false
	}
	if f.SLAType != "" && !strings.EqualFold(string(r.SLAType), string(f.SLAType)) {
		return false
	}
	if f.Agent != "" && !matchesAgent(f.Agent, r.AssigneeName, r.AssigneeEmail) {
		return false
	}
	return f.inRange(recordTime(r))
}

func (f Filter) inRange(at time.Time) bool {
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.To != nil && at.After(*f.To) {
		return false
	}
	return true
}

func matchesAgent(agent, name, email string) bool {
	if strings.EqualFold(agent, Unattributed) {
		return agentKey(name, email) == Unattributed
	}
	return strings.EqualFold(agent, email) || strings.EqualFold(agent, name)
}

func recordTime(r Record) time.Time {
	if r.AssignedAt != nil {
		return *r.AssignedAt
	}
	return r.UpdatedAt
}

// FilterRecords returns the records matching f, ordered by ticket id.
func FilterRecords(records []Record, f Filter) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out
}

// Breakdown is a compliance summary for one group of records.
type Breakdown struct {
	Total    int     `json:"total"`
	Active   int     `json:"active"`
	Missed   int     `json:"missed"`
	Hit      int     `json:"hit"`
	Critical int     `json:"critical"`
	Overdue  int     `json:"overdue"`
	HitRate  float64 `json:"hitRate"`
	// Assigned counts every ticket ever assigned to the agent, SLA or not.
	Assigned int `json:"assigned,omitempty"`

	rateHit   int
	rateTotal int
}

// Stats is the fleet-wide compliance summary.
type Stats struct {
	Total               int                   `json:"total"`
	ByStatus            map[Status]int        `json:"byStatus"`
	Active              int                   `json:"active"`
	Missed              int                   `json:"missed"`
	Hit                 int                   `json:"hit"`
	Critical            int                   `json:"critical"`
	Overdue             int                   `json:"overdue"`
	Paused              int                   `json:"paused"`
	Unwarranted         int                   `json:"unwarranted"`
	HitRate             float64               `json:"hitRate"`
	AvgTimeToHitSeconds float64               `json:"avgTimeToHitSeconds"`
	AlertsSent          int                   `json:"alertsSent"`
	ByAgent             map[string]*Breakdown `json:"byAgent"`
	BySLAType           map[string]*Breakdown `json:"bySlaType"`
	GeneratedAt         time.Time             `json:"generatedAt"`
}

// ComputeStats aggregates records. assignments, when given, supply the
// per-agent assigned totals.
func ComputeStats(records []Record, assignments []AssignmentRecord, now time.Time) Stats {
	st := Stats{
		ByStatus:    map[Status]int{},
		ByAgent:     map[string]*Breakdown{},
		BySLAType:   map[string]*Breakdown{},
		GeneratedAt: now,
	}
	var rateHit, rateTotal int
	var hitDur time.Duration
	var hitN int
	for _, r := range records {
		st.Total++
		st.ByStatus[r.SLAStatus]++
		st.AlertsSent += len(r.AlertHistory)
		if r.IsPaused {
			st.Paused++
		}
		if r.HasUnwarrantedTag {
			st.Unwarranted++
		}
		critical, overdue := urgency(r, now)
		switch r.SLAStatus {
		case StatusActive:
			st.Active++
		case StatusMissed:
			st.Missed++
		case StatusHit:
			st.Hit++
			if r.HitAt != nil && r.AssignedAt != nil && !r.HitAt.Before(*r.AssignedAt) {
				hitDur += r.HitAt.Sub(*r.AssignedAt)
				hitN++
			}
		}
		if critical {
			st.Critical++
		}
		if overdue {
			st.Overdue++
		}
		countsForRate := !r.HasUnwarrantedTag && isRated(r.SLAStatus)
		if countsForRate {
			rateTotal++
			if r.SLAStatus == StatusHit {
				rateHit++
			}
		}
		for _, b := range []*Breakdown{
			group(st.ByAgent, agentKey(r.AssigneeName, r.AssigneeEmail)),
			group(st.BySLAType, slaTypeKey(r.SLAType)),
		} {
			b.add(r.SLAStatus, critical, overdue, countsForRate)
		}
	}
	st.HitRate = ratio(rateHit, rateTotal)
	if hitN > 0 {
		st.AvgTimeToHitSeconds = (hitDur / time.Duration(hitN)).Seconds()
	}
	for _, a := range assignments {
		group(st.ByAgent, agentKey(a.AssigneeName, a.AssigneeEmail)).Assigned++
	}
	for _, m := range []map[string]*Breakdown{st.ByAgent, st.BySLAType} {
		for _, b := range m {
			b.HitRate = ratio(b.rateHit, b.rateTotal)
		}
	}
	return st
}

func (b *Breakdown) add(s Status, critical, overdue, rated bool) {
	b.Total++
	switch s {
	case StatusActive:
		b.Active++
	case StatusMissed:
		b.Missed++
	case StatusHit:
		b.Hit++
	}
	if critical {
		b.Critical++
	}
	if overdue {
		b.Overdue++
	}
	if rated {
		b.rateTotal++
		if s == StatusHit {
			b.rateHit++
		}
	}
}

// urgency classifies an active record: overdue once past its deadline,
// critical when less than criticalWindow remains.
func urgency(r Record, now time.Time) (critical, overdue bool) {
	if r.SLAStatus != StatusActive || r.Deadline == nil {
		return false, false
	}
	remaining := r.Deadline.Sub(now)
	if remaining < 0 {
		return false, true
	}
	return remaining < criticalWindow, false
}

func isRated(s Status) bool {
	return s == StatusHit || s == StatusMissed || s == StatusActive
}

func group(m map[string]*Breakdown, key string) *Breakdown {
	b, ok := m[key]
	if !ok {
		b = &Breakdown{}
		m[key] = b
	}
	return b
}

func agentKey(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if e := strings.TrimSpace(email); e != "" {
		return e
	}
	return Unattributed
}

func slaTypeKey(b Bucket) string {
	if b == "" {
		return string(BucketUnclassified)
	}
	return string(b)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
