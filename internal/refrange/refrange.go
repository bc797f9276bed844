// Package refrange classifies result values against reference ranges. The
// flag it produces is advisory metadata for alerting and display; it never
// gates a lifecycle transition.
package refrange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	id "limscore/pkg/domain"
)

// Range is the reference context for one test assignment. Quantitative
// ranges carry numeric thresholds; qualitative ranges carry the set of
// values considered normal.
type Range struct {
	Low  float64
	High float64

	// Critical thresholds. Zero-valued bounds are ignored.
	CriticalLow  *float64
	CriticalHigh *float64

	// NormalOptions lists the qualitative values considered normal,
	// compared case-insensitively.
	NormalOptions []string

	Unit string

	// DeltaThreshold is the relative change (0..1) against the previous
	// value that raises the advisory delta flag. Zero disables the check.
	DeltaThreshold float64
}

// Text renders the range the way reports show it, snapshotted onto the
// result at entry time.
func (r Range) Text() string {
	if len(r.NormalOptions) > 0 {
		return strings.Join(r.NormalOptions, ", ")
	}
	if r.Low == 0 && r.High == 0 {
		return ""
	}
	return fmt.Sprintf("%g - %g %s", r.Low, r.High, strings.TrimSpace(r.Unit))
}

// Classify flags a quantitative value against the range. Critical always
// takes precedence for alerting regardless of numeric direction.
func (r Range) Classify(value float64) id.Flag {
	if r.CriticalLow != nil && value <= *r.CriticalLow {
		return id.FlagCritical
	}
	if r.CriticalHigh != nil && value >= *r.CriticalHigh {
		return id.FlagCritical
	}
	if r.High > r.Low {
		if value < r.Low {
			return id.FlagLow
		}
		if value > r.High {
			return id.FlagHigh
		}
	}
	return id.FlagNormal
}

// ClassifyQualitative flags an option-valued result: values outside the
// normal set are abnormal, never low/high/critical.
func (r Range) ClassifyQualitative(value string) id.Flag {
	for _, opt := range r.NormalOptions {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(value)) {
			return id.FlagNormal
		}
	}
	return id.FlagAbnormal
}

// SanityWarning returns a non-blocking advisory when a value is wildly
// outside the reference range (below 0.1x the lower bound or above 10x the
// upper bound), suggesting a transcription slip. Empty string means no
// warning.
func (r Range) SanityWarning(value float64) string {
	if r.Low > 0 && value < r.Low*0.1 {
		return "value unusually low, double-check entry"
	}
	if r.High > 0 && value > r.High*10 {
		return "value unusually high, double-check entry"
	}
	return ""
}

// DeltaExceeded reports whether the relative change between two numeric
// values crosses the delta threshold. Unparsable values never raise it.
func (r Range) DeltaExceeded(previous, current string) bool {
	if r.DeltaThreshold <= 0 {
		return false
	}
	prev, err := strconv.ParseFloat(strings.TrimSpace(previous), 64)
	if err != nil || prev == 0 {
		return false
	}
	cur, err := strconv.ParseFloat(strings.TrimSpace(current), 64)
	if err != nil {
		return false
	}
	return math.Abs(cur-prev)/math.Abs(prev) >= r.DeltaThreshold
}

// ParseNumeric parses a quantitative result value.
func ParseNumeric(value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q", value)
	}
	return v, nil
}

// Source supplies the reference range for an assignment's test. The test
// catalog itself is external context; the engine only consumes ranges.
type Source interface {
	RangeFor(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (Range, bool, error)
}

// InMemorySource is a Source backed by a map, used by tests and the
// standalone binary.
type InMemorySource struct {
	mu     sync.RWMutex
	ranges map[string]Range
}

func NewInMemorySource() *InMemorySource {
	return &InMemorySource{ranges: make(map[string]Range)}
}

func (s *InMemorySource) Set(tenantID id.TenantID, assignmentID id.AssignmentID, r Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges[key(tenantID, assignmentID)] = r
}

func (s *InMemorySource) RangeFor(_ context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (Range, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ranges[key(tenantID, assignmentID)]
	return r, ok, nil
}

func key(tenantID id.TenantID, assignmentID id.AssignmentID) string {
	return tenantID.String() + "/" + assignmentID.String()
}
