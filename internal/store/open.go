package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/sla-notifier/internal/sla"
)

// Stores is an opened pair of tracking tables.
type Stores struct {
	Records     sla.RecordStore
	Assignments sla.AssignmentStore
	close       func()
}

// Close releases the backend.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	DatabaseURL string
	// ReloadInterval is how often file tables pick up writes made by
	// another process. Zero disables reloading.
	ReloadInterval time.Duration
}

// Open opens the backend named by o.Backend, "file" or "postgres". File
// watchers stop when ctx is done.
func Open(ctx context.Context, o Options) (*Stores, error) {
	switch o.Backend {
	case "", "file":
		recs, err := NewFileRecords(o.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sla table: %w", err)
		}
		asg, err := NewFileAssignments(o.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open assignment table: %w", err)
		}
		if o.ReloadInterval > 0 {
			go recs.Watch(ctx, o.ReloadInterval)
			go asg.Watch(ctx, o.ReloadInterval)
		}
		log.Info().Str("dir", o.DataDir).Msg("using file store")
		return &Stores{Records: recs, Assignments: asg}, nil
	case "postgres":
		if err := Migrate(ctx, o.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, o.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		log.Info().Msg("using postgres store")
		return &Stores{Records: NewPGRecords(pool), Assignments: NewPGAssignments(pool), close: pool.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", o.Backend)
	}
}
