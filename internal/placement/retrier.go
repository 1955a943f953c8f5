package placement

import (
	"context"
	"log"
	"time"

	"silexa/approvals/internal/approval"
)

// SubmissionSource is the narrow view the retrier needs of approved
// submissions: those currently STAGED or MANUAL_REQUESTED, and a way
// to record a successful promotion to DELIVERED. Both implementations
// in this module (internal/engine and approvalctl) read and update the
// approved archive, since approved submissions have already left the
// live queue.
type SubmissionSource interface {
	PendingPlacements() ([]approval.Submission, error)
	PromoteToDelivered(id, targetPath string) error
}

// Retrier periodically re-attempts direct placement for submissions
// stuck at STAGED or MANUAL_REQUESTED, promoting them to DELIVERED when
// permissions become available.
type Retrier struct {
	pipeline *Pipeline
	source   SubmissionSource
	interval time.Duration
	log      *log.Logger
}

func NewRetrier(pipeline *Pipeline, source SubmissionSource, interval time.Duration, logger *log.Logger) *Retrier {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Retrier{pipeline: pipeline, source: source, interval: interval, log: logger}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (r *Retrier) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce()
		}
	}
}

// SweepOnce runs a single retry pass immediately, outside the ticker
// loop. Used by approvalctl's manual retry-placements command.
func (r *Retrier) SweepOnce() {
	pending, err := r.source.PendingPlacements()
	if err != nil {
		r.log.Printf("placement retrier: list pending: %v", err)
		return
	}
	for _, sub := range pending {
		if sub.AdminDecidedAt == nil {
			continue
		}
		year := sub.AdminDecidedAt.UTC().Year()
		artifactPath := sub.UploadPath
		if sub.PlacementOutcome == approval.PlacementStaged {
			artifactPath = sub.PlacementTargetPath
		}
		outcome, promoted, err := r.pipeline.RetryPromote(sub.ID, artifactPath, sub.SubmitterTeam, year, sub.OriginalFilename)
		if err != nil {
			r.log.Printf("placement retrier: retry %s: %v", sub.ID, err)
			continue
		}
		if !promoted {
			continue
		}
		if err := r.source.PromoteToDelivered(sub.ID, outcome.TargetPath); err != nil {
			r.log.Printf("placement retrier: promote %s: %v", sub.ID, err)
			continue
		}
		if err := r.pipeline.ClearRequest(sub.ID); err != nil {
			r.log.Printf("placement retrier: clear request %s: %v", sub.ID, err)
		}
	}
}
