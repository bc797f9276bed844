// Package delivery is the outbound report delivery collaborator (email/PDF).
// The lifecycle invokes it after the release transaction commits; a failed
// delivery is reported to the caller as a warning and never reverts the
// release.
package delivery

import (
	"context"
	"log/slog"

	"limscore/internal/result/models"
)

// Deliverer sends a released result to its recipients.
type Deliverer interface {
	DeliverResult(ctx context.Context, result *models.TestResult) error
}

// LogDeliverer records deliveries without sending anything. Stands in for
// the real email/PDF pipeline in tests and standalone runs.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) DeliverResult(ctx context.Context, result *models.TestResult) error {
	d.logger.InfoContext(ctx, "result delivery requested",
		"result_id", result.ID,
		"assignment_id", result.AssignmentID,
		"flag", result.Flag,
	)
	return nil
}
