package service_test

import (
	"context"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/service"
)

// MockAlertRepo
type MockAlertRepo struct {
	mock.Mock
}

func (m *MockAlertRepo) Create(ctx context.Context, incident *domain.AlertIncident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}
func (m *MockAlertRepo) GetByID(ctx context.Context, id string) (*domain.AlertIncident, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AlertIncident), args.Error(1)
}
func (m *MockAlertRepo) FindActiveByBooking(ctx context.Context, bookingID string) (*domain.AlertIncident, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AlertIncident), args.Error(1)
}
func (m *MockAlertRepo) Update(ctx context.Context, incident *domain.AlertIncident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}
func (m *MockAlertRepo) ListSince(ctx context.Context, since time.Time, minSeverity domain.Severity) ([]domain.AlertIncident, error) {
	args := m.Called(ctx, since, minSeverity)
	return args.Get(0).([]domain.AlertIncident), args.Error(1)
}
func (m *MockAlertRepo) CountBySeverity(ctx context.Context, since time.Time) (map[domain.Severity]int, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(map[domain.Severity]int), args.Error(1)
}

// MockLedgerRepo
type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) ListCompletedMovements(ctx context.Context, bookingID string) ([]domain.LedgerMovement, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerMovement), args.Error(1)
}

// MockValidationLogRepo
type MockValidationLogRepo struct {
	mock.Mock
}

func (m *MockValidationLogRepo) Append(ctx context.Context, entry *domain.ValidationLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockValidationLogRepo) List(ctx context.Context, filter domain.ValidationLogFilter) ([]domain.ValidationLogEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ValidationLogEntry), args.Error(1)
}

// MockNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyIncidentOpened(ctx context.Context, incident *domain.AlertIncident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}

// MockMailSender
type MockMailSender struct {
	mock.Mock
}

func (m *MockMailSender) Send(email *mail.SGMailV3) (*service.MailResponse, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MailResponse), args.Error(1)
}

func money(s string) decimal.Decimal {
	return domain.MustMoney(s)
}

func moneyPtr(s string) *decimal.Decimal {
	d := domain.MustMoney(s)
	return &d
}

// MockPushSender
type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}
