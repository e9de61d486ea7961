package yookassa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rvinnie/yookassa-sdk-go/yookassa"
	yoocommon "github.com/rvinnie/yookassa-sdk-go/yookassa/common"
	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"

	"iptv-bot/internal/stories/payment"
)

// Client implements payment.Gateway on top of the YooKassa SDK.
type Client struct {
	client    *yookassa.Client
	logger    *slog.Logger
	returnURL string
	currency  string
}

func NewClient(shopID, secretKey, returnURL, currency string, logger *slog.Logger) (*Client, error) {
	if shopID == "" || secretKey == "" {
		return nil, fmt.Errorf("yookassa shop id and secret key are required")
	}

	return &Client{
		client:    yookassa.NewClient(shopID, secretKey),
		logger:    logger,
		returnURL: returnURL,
		currency:  currency,
	}, nil
}

// CreateCharge creates a payment and returns its confirmation URL as the pay code.
func (c *Client) CreateCharge(ctx context.Context, phone string, amount float64, metadata map[string]string) (*payment.Charge, error) {
	idempotenceKey := fmt.Sprintf("%s_%d", uuid.New().String(), time.Now().Unix())

	req := &yoopayment.Payment{
		Amount: &yoocommon.Amount{
			Value:    fmt.Sprintf("%.2f", amount),
			Currency: c.currency,
		},
		Confirmation: &yoopayment.Redirect{
			Type:      yoopayment.TypeRedirect,
			ReturnURL: c.returnURL,
		},
		Description: "Lista IPTV " + metadata["username"],
		Metadata:    metadata,
		Capture:     true,
	}

	handler := yookassa.NewPaymentHandler(c.client).WithIdempotencyKey(idempotenceKey)
	result, err := handler.CreatePayment(req)
	if err != nil {
		c.logger.Error("Failed to create payment in YooKassa", "error", err, "phone", phone)
		return nil, fmt.Errorf("create payment: %w", err)
	}

	payCode := extractPaymentURL(result)
	if payCode == "" {
		return nil, fmt.Errorf("payment %s has no confirmation url", result.ID)
	}

	c.logger.Info("Payment created in YooKassa", "payment_id", result.ID, "status", result.Status)
	return &payment.Charge{PaymentID: result.ID, PayCode: payCode}, nil
}

// PaymentStatus reads the authoritative payment status.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (payment.Status, error) {
	handler := yookassa.NewPaymentHandler(c.client)
	result, err := handler.FindPayment(paymentID)
	if err != nil {
		c.logger.Error("Failed to get payment status", "error", err, "payment_id", paymentID)
		return "", fmt.Errorf("find payment: %w", err)
	}

	c.logger.Debug("Payment status retrieved", "payment_id", paymentID, "status", result.Status)
	return mapStatus(result.Status), nil
}

func extractPaymentURL(p *yoopayment.Payment) string {
	if p.Confirmation == nil {
		return ""
	}

	if redirect, ok := p.Confirmation.(*yoopayment.Redirect); ok {
		return redirect.ConfirmationURL
	}

	// The SDK sometimes decodes the confirmation as a plain map.
	if confMap, ok := p.Confirmation.(map[string]interface{}); ok {
		if url, exists := confMap["confirmation_url"].(string); exists {
			return url
		}
	}

	return ""
}

func mapStatus(status yoopayment.Status) payment.Status {
	switch status {
	case yoopayment.Succeeded:
		return payment.StatusApproved
	case yoopayment.Canceled:
		return payment.StatusRejected
	default:
		return payment.StatusPending
	}
}
