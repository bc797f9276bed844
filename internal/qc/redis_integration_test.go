//go:build integration

package qc_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"limscore/internal/qc"
	id "limscore/pkg/domain"
	"limscore/pkg/testutil/containers"
)

type CachedCheckerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCachedCheckerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedCheckerSuite))
}

func (s *CachedCheckerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedCheckerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// countingChecker wraps StaticChecker and counts upstream hits.
type countingChecker struct {
	inner *qc.StaticChecker
	calls int
}

func (c *countingChecker) Passed(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (bool, error) {
	c.calls++
	return c.inner.Passed(ctx, tenantID, assignmentID)
}

func (s *CachedCheckerSuite) TestVerdictIsCached() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	assignment := id.AssignmentID(uuid.New())

	upstream := &countingChecker{inner: qc.NewStaticChecker()}
	upstream.inner.SetPassed(assignment, true)
	checker := qc.NewCachedChecker(upstream, s.redis.Client, time.Minute)

	passed, err := checker.Passed(ctx, tenant, assignment)
	s.Require().NoError(err)
	s.True(passed)
	s.Equal(1, upstream.calls)

	passed, err = checker.Passed(ctx, tenant, assignment)
	s.Require().NoError(err)
	s.True(passed)
	s.Equal(1, upstream.calls, "second lookup should hit the cache")
}

func (s *CachedCheckerSuite) TestFailVerdictIsCachedDistinctly() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	assignment := id.AssignmentID(uuid.New())

	upstream := &countingChecker{inner: qc.NewStaticChecker()}
	checker := qc.NewCachedChecker(upstream, s.redis.Client, time.Minute)

	passed, err := checker.Passed(ctx, tenant, assignment)
	s.Require().NoError(err)
	s.False(passed)

	passed, err = checker.Passed(ctx, tenant, assignment)
	s.Require().NoError(err)
	s.False(passed)
	s.Equal(1, upstream.calls)
}
