// Package optin tracks which agents asked to be messaged when a ticket is
// assigned to them.
package optin

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "sla:assignment_optin"

// ErrInvalidEmail is returned for blank agent addresses.
var ErrInvalidEmail = errors.New("agent email required")

// Registry is a Redis set of opted-in agent emails.
type Registry struct {
	rdb *redis.Client
	key string
}

// New returns a Registry stored under key, or a default key when empty.
func New(rdb *redis.Client, key string) *Registry {
	if key == "" {
		key = defaultKey
	}
	return &Registry{rdb: rdb, key: key}
}

func normalize(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", ErrInvalidEmail
	}
	return e, nil
}

// OptIn adds email to the set.
func (r *Registry) OptIn(ctx context.Context, email string) error {
	e, err := normalize(email)
	if err != nil {
		return err
	}
	return r.rdb.SAdd(ctx, r.key, e).Err()
}

// OptOut removes email from the set.
func (r *Registry) OptOut(ctx context.Context, email string) error {
	e, err := normalize(email)
	if err != nil {
		return err
	}
	return r.rdb.SRem(ctx, r.key, e).Err()
}

// IsOptedIn reports whether email is in the set. A nil Registry has nobody
// opted in.
func (r *Registry) IsOptedIn(ctx context.Context, email string) (bool, error) {
	if r == nil || r.rdb == nil {
		return false, nil
	}
	e, err := normalize(email)
	if err != nil {
		return false, nil
	}
	return r.rdb.SIsMember(ctx, r.key, e).Result()
}

// List returns all opted-in emails.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	return r.rdb.SMembers(ctx, r.key).Result()
}
