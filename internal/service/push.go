package service

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
)

// PushSender delivers one FCM message. *messaging.Client satisfies it.
type PushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type fcmNotifier struct {
	sender PushSender
	topic  string
}

// NewFCMNotifier pushes newly opened incidents to an FCM topic the on-call
// app subscribes to.
func NewFCMNotifier(ctx context.Context, credentialsFile, projectID, topic string) (AlertNotifier, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewFCMNotifierWithSender(client, topic), nil
}

func NewFCMNotifierWithSender(sender PushSender, topic string) AlertNotifier {
	return &fcmNotifier{sender: sender, topic: topic}
}

func (n *fcmNotifier) NotifyIncidentOpened(ctx context.Context, incident *domain.AlertIncident) error {
	msg := &messaging.Message{
		Topic: n.topic,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("%s balance discrepancy", incident.Severity),
			Body:  fmt.Sprintf("Booking %s is off by %s", incident.BookingID, incident.DiscrepancyAmount.StringFixed(2)),
		},
		Data: map[string]string{
			"incident_id": incident.ID,
			"booking_id":  incident.BookingID,
			"severity":    string(incident.Severity),
			"discrepancy": incident.DiscrepancyAmount.StringFixed(2),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}

	id, err := n.sender.Send(ctx, msg)
	logger.ExternalServiceResult("fcm", "send", err, "incident_id", incident.ID, "message_id", id)
	if err != nil {
		return fmt.Errorf("push incident %s: %w", incident.ID, err)
	}
	return nil
}

type multiNotifier []AlertNotifier

// NewMultiNotifier fans an incident out to every notifier. All are tried
// even when one fails; the failures are joined.
func NewMultiNotifier(notifiers ...AlertNotifier) AlertNotifier {
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return multiNotifier(notifiers)
}

func (m multiNotifier) NotifyIncidentOpened(ctx context.Context, incident *domain.AlertIncident) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyIncidentOpened(ctx, incident); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
