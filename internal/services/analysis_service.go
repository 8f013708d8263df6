package services

import (
	"context"
	"fmt"
	"log/slog"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
)

// AnalysisTracker is the progress state machine of trend analyses.
type AnalysisTracker interface {
	TryStart(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string)
	Reset(ctx context.Context, userID string)
	Status(ctx context.Context, userID string) core.AnalysisStatus
}

// AnalysisService starts trend analyses and reports their progress.
type AnalysisService struct {
	tracker   AnalysisTracker
	publisher Publisher
}

func NewAnalysisService(tracker AnalysisTracker, publisher Publisher) *AnalysisService {
	return &AnalysisService{tracker: tracker, publisher: publisher}
}

// Trigger enqueues a trend analysis unless a result is already cached or
// another analysis holds the lease. force discards a cached result first.
func (s *AnalysisService) Trigger(ctx context.Context, userID string, force bool) (core.AnalysisStatus, error) {
	if force {
		s.tracker.Reset(ctx, userID)
	} else if st := s.tracker.Status(ctx, userID); st.State == core.AnalysisCompleted {
		return st, nil
	}

	acquired, err := s.tracker.TryStart(ctx, userID)
	if err != nil {
		return core.AnalysisStatus{}, fmt.Errorf("acquire analysis lease: %w", err)
	}
	if !acquired {
		slog.DebugContext(ctx, "Trend analysis already running", "user_id", userID)
		return core.AnalysisStatus{State: core.AnalysisProcessing}, nil
	}

	if err := s.publisher.Publish(ctx, amqp.NewComputeTrendsJob(userID)); err != nil {
		// Without a job nothing would ever complete the lease.
		s.tracker.Release(ctx, userID)
		return core.AnalysisStatus{}, fmt.Errorf("enqueue trend analysis: %w", err)
	}

	slog.InfoContext(ctx, "Trend analysis enqueued", "user_id", userID, "force", force)
	return core.AnalysisStatus{State: core.AnalysisProcessing}, nil
}

func (s *AnalysisService) Status(ctx context.Context, userID string) core.AnalysisStatus {
	return s.tracker.Status(ctx, userID)
}
