package services

import (
	"context"
	"errors"
	"testing"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
	"spese-analytics/internal/progress"
)

func newTestAnalysis(pub *fakePublisher) (*AnalysisService, *progress.Tracker) {
	tracker := progress.NewTracker(newTestCoordinator())
	return NewAnalysisService(tracker, pub), tracker
}

func TestAnalysisService_TriggerEnqueuesOnce(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newTestAnalysis(pub)

	if st := svc.Status(ctx, "u1"); st.State != core.AnalysisNotStarted {
		t.Fatalf("initial state = %s", st.State)
	}

	for i := 0; i < 3; i++ {
		st, err := svc.Trigger(ctx, "u1", false)
		if err != nil {
			t.Fatalf("Trigger: %v", err)
		}
		if st.State != core.AnalysisProcessing {
			t.Fatalf("state = %s, want processing", st.State)
		}
	}
	if len(pub.jobs) != 1 || pub.jobs[0].Type != amqp.JobComputeTrends {
		t.Fatalf("concurrent triggers must enqueue exactly one job, got %d", len(pub.jobs))
	}
}

func TestAnalysisService_CompletedShortCircuits(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, tracker := newTestAnalysis(pub)

	svc.Trigger(ctx, "u1", false)
	tracker.Complete(ctx, "u1", &core.TrendResult{UserID: "u1", OverallTrend: core.TrendStable})

	st, err := svc.Trigger(ctx, "u1", false)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != core.AnalysisCompleted || st.Data == nil {
		t.Fatalf("expected completed with data, got %+v", st)
	}
	if len(pub.jobs) != 1 {
		t.Fatalf("a cached result must not enqueue another job, got %d jobs", len(pub.jobs))
	}
}

func TestAnalysisService_ForceRestartsCycle(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, tracker := newTestAnalysis(pub)

	svc.Trigger(ctx, "u1", false)
	tracker.Complete(ctx, "u1", &core.TrendResult{UserID: "u1"})

	st, err := svc.Trigger(ctx, "u1", true)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != core.AnalysisProcessing {
		t.Fatalf("forced trigger state = %s", st.State)
	}
	if got := svc.Status(ctx, "u1").State; got != core.AnalysisProcessing {
		t.Fatalf("status after force = %s", got)
	}
	if len(pub.jobs) != 2 {
		t.Fatalf("expected a second job, got %d", len(pub.jobs))
	}
}

func TestAnalysisService_PublishFailureReleasesLease(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errBroker}
	svc, _ := newTestAnalysis(pub)

	if _, err := svc.Trigger(ctx, "u1", false); !errors.Is(err, errBroker) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if got := svc.Status(ctx, "u1").State; got != core.AnalysisNotStarted {
		t.Fatalf("lease should be released, state = %s", got)
	}

	pub.err = nil
	if _, err := svc.Trigger(ctx, "u1", false); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(pub.jobs) != 1 {
		t.Fatal("retry should enqueue")
	}
}
