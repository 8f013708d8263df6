package services

import (
	"context"
	"fmt"
	"strings"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/core"
)

// ReportService queues report deliveries and manages subscriptions.
type ReportService struct {
	subscriptions SubscriptionStore
	publisher     Publisher
}

func NewReportService(subscriptions SubscriptionStore, publisher Publisher) *ReportService {
	return &ReportService{subscriptions: subscriptions, publisher: publisher}
}

// RequestReport enqueues a send_report job. Unlike mutation events, a failed
// publish is returned since nothing else will deliver the report.
func (s *ReportService) RequestReport(ctx context.Context, userID string, period core.Period, recipient string) (*amqp.Job, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(recipient) == "" {
		return nil, core.ErrEmptyRecipient
	}

	job := amqp.NewSendReportJob(userID, period.String(), recipient)
	if err := s.publisher.Publish(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue report: %w", err)
	}
	return job, nil
}

// Subscribe sets the recipient of the user's scheduled monthly report.
func (s *ReportService) Subscribe(ctx context.Context, sub core.ReportSubscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.subscriptions.SetReportSubscription(ctx, sub)
}
