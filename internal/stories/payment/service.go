package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Service fronts the gateway. In test mode charges are simulated and every payment
// reads back as approved.
type Service struct {
	gateway  Gateway
	logger   *slog.Logger
	testMode bool
}

func NewService(gateway Gateway, testMode bool, logger *slog.Logger) *Service {
	return &Service{
		gateway:  gateway,
		logger:   logger,
		testMode: testMode,
	}
}

// CreateCharge asks the gateway for a new charge.
func (s *Service) CreateCharge(ctx context.Context, phone string, amount float64, metadata map[string]string) (*Charge, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %.2f", amount)
	}

	if s.testMode {
		id := "test-" + uuid.NewString()
		s.logger.Info("Test mode charge created", "payment_id", id, "phone", phone, "amount", amount)
		return &Charge{PaymentID: id, PayCode: "TESTE-" + id}, nil
	}

	charge, err := s.gateway.CreateCharge(ctx, phone, amount, metadata)
	if err != nil {
		s.logger.Error("Failed to create charge", "error", err, "phone", phone, "amount", amount)
		return nil, fmt.Errorf("gateway create charge: %w", err)
	}

	s.logger.Info("Charge created", "payment_id", charge.PaymentID, "phone", phone, "amount", amount)
	return charge, nil
}

// VerifyStatus asks the gateway for the authoritative status of a payment.
func (s *Service) VerifyStatus(ctx context.Context, paymentID string) (Status, error) {
	if s.testMode {
		return StatusApproved, nil
	}

	status, err := s.gateway.PaymentStatus(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("gateway payment status: %w", err)
	}
	return status, nil
}

func (s *Service) TestMode() bool {
	return s.testMode
}
