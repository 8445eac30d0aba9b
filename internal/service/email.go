package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
)

// MailSender is the slice of the SendGrid client the notifier needs.
type MailSender interface {
	Send(email *mail.SGMailV3) (*MailResponse, error)
}

// MailResponse is the status the notifier inspects after a send.
type MailResponse struct {
	StatusCode int
	Body       string
}

type sendGridClient struct {
	apiKey string
}

func (c *sendGridClient) Send(email *mail.SGMailV3) (*MailResponse, error) {
	resp, err := sendgrid.NewSendClient(c.apiKey).Send(email)
	if err != nil {
		return nil, err
	}
	return &MailResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

type sendGridNotifier struct {
	sender     MailSender
	fromEmail  string
	fromName   string
	recipients []string
}

// NewSendGridNotifier emails every recipient when an incident opens.
func NewSendGridNotifier(apiKey, fromEmail, fromName string, recipients []string) AlertNotifier {
	return NewSendGridNotifierWithSender(&sendGridClient{apiKey: apiKey}, fromEmail, fromName, recipients)
}

func NewSendGridNotifierWithSender(sender MailSender, fromEmail, fromName string, recipients []string) AlertNotifier {
	return &sendGridNotifier{
		sender:     sender,
		fromEmail:  fromEmail,
		fromName:   fromName,
		recipients: recipients,
	}
}

func (n *sendGridNotifier) NotifyIncidentOpened(ctx context.Context, incident *domain.AlertIncident) error {
	if len(n.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] Balance discrepancy on booking %s", strings.ToUpper(string(incident.Severity)), incident.BookingID)
	plainText := fmt.Sprintf(
		"Booking %s has a stored balance that differs from its ledger by %s.\n\nIncident: %s\nSeverity: %s\nOpened: %s\n",
		incident.BookingID,
		incident.DiscrepancyAmount.StringFixed(domain.CurrencyPlaces),
		incident.ID,
		incident.Severity,
		incident.CreatedAt.Format("2006-01-02 15:04:05 MST"),
	)
	htmlContent := fmt.Sprintf(`
		<html>
			<body>
				<h2>Balance discrepancy</h2>
				<p>Booking <strong>%s</strong> differs from its ledger by <strong>%s</strong>.</p>
				<p>Incident %s, severity %s.</p>
			</body>
		</html>
	`, incident.BookingID, incident.DiscrepancyAmount.StringFixed(domain.CurrencyPlaces), incident.ID, incident.Severity)

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(n.fromName, n.fromEmail))
	message.Subject = subject
	p := mail.NewPersonalization()
	for _, r := range n.recipients {
		p.AddTos(mail.NewEmail("", r))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", plainText), mail.NewContent("text/html", htmlContent))

	resp, err := n.sender.Send(message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "send", err, "incident_id", incident.ID)
		return fmt.Errorf("failed to send incident email: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid error: status %d, body: %s", resp.StatusCode, resp.Body)
		logger.ExternalServiceResult("sendgrid", "send", err, "incident_id", incident.ID)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "send", nil, "incident_id", incident.ID, "recipients", len(n.recipients))
	return nil
}

type logNotifier struct{}

// NewLogNotifier only logs incidents. Used when no mail provider is configured.
func NewLogNotifier() AlertNotifier {
	return logNotifier{}
}

func (logNotifier) NotifyIncidentOpened(ctx context.Context, incident *domain.AlertIncident) error {
	logger.Warn("Incident notification (no mail provider configured)",
		"incident_id", incident.ID,
		"booking_id", incident.BookingID,
		"severity", incident.Severity)
	return nil
}
