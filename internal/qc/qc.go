// Package qc exposes the external quality-control verdict consumed by the
// Verify transition. The QC subsystem itself (instrument/reagent controls)
// lives outside the engine; this package only answers "did the run pass".
package qc

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "limscore/pkg/domain"
)

// Checker reports whether quality control has passed for the run behind an
// assignment. Errors mean the verdict is unavailable, not that QC failed.
type Checker interface {
	Passed(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (bool, error)
}

// StaticChecker returns a fixed verdict per assignment, defaulting to fail.
// Used by tests and the standalone binary.
type StaticChecker struct {
	verdicts map[id.AssignmentID]bool
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{verdicts: make(map[id.AssignmentID]bool)}
}

// SetPassed records a verdict for an assignment.
func (c *StaticChecker) SetPassed(assignmentID id.AssignmentID, passed bool) {
	c.verdicts[assignmentID] = passed
}

func (c *StaticChecker) Passed(_ context.Context, _ id.TenantID, assignmentID id.AssignmentID) (bool, error) {
	return c.verdicts[assignmentID], nil
}

// CachedChecker caches verdicts in Redis in front of a slower upstream.
// QC verdicts are stable once a run closes, so a short TTL is safe; a cache
// miss or Redis outage falls through to the upstream checker.
type CachedChecker struct {
	upstream Checker
	client   *redis.Client
	ttl      time.Duration
}

// NewCachedChecker wraps upstream with a Redis verdict cache.
func NewCachedChecker(upstream Checker, client *redis.Client, ttl time.Duration) *CachedChecker {
	return &CachedChecker{upstream: upstream, client: client, ttl: ttl}
}

func (c *CachedChecker) Passed(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (bool, error) {
	key := cacheKey(tenantID, assignmentID)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	// redis.Nil is a miss; other errors degrade to the upstream too.

	passed, err := c.upstream.Passed(ctx, tenantID, assignmentID)
	if err != nil {
		return false, err
	}

	cached := "0"
	if passed {
		cached = "1"
	}
	// Best effort; a failed cache write never fails the verdict.
	_ = c.client.Set(ctx, key, cached, c.ttl).Err()

	return passed, nil
}

func cacheKey(tenantID id.TenantID, assignmentID id.AssignmentID) string {
	return fmt.Sprintf("qc:%s:%s", tenantID, assignmentID)
}
