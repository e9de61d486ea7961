// Package correlator matches gateway notifications to pending payments and starts
// provisioning exactly once per approved payment.
package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/conversation"
	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/reconcile"
	"iptv-bot/internal/stories/payment"
	"iptv-bot/internal/stories/syslogs"
)

// Notification types the gateway may deliver. Anything else is dropped.
const (
	TypeCreated           = "payment.created"
	TypeUpdated           = "payment.updated"
	TypeSucceeded         = "payment.succeeded"
	TypeWaitingForCapture = "payment.waiting_for_capture"
	TypeCanceled          = "payment.canceled"
)

// Event routing keys published for operators.
const (
	EventAccountProvisioned = "account.provisioned"
	EventProvisioningFailed = "provisioning.failed"
)

var acceptedTypes = map[string]struct{}{
	TypeCreated:           {},
	TypeUpdated:           {},
	TypeSucceeded:         {},
	TypeWaitingForCapture: {},
	TypeCanceled:          {},
}

type Notification struct {
	Type      string
	PaymentID string
}

type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeDropped  Outcome = "dropped"
	OutcomePending  Outcome = "pending"
	OutcomeRejected Outcome = "rejected"
	OutcomeApproved Outcome = "approved"
)

// Event is the body published on the operator queue.
type Event struct {
	Type       string    `json:"type"`
	PaymentID  string    `json:"payment_id"`
	Phone      string    `json:"phone"`
	Username   string    `json:"username"`
	Context    string    `json:"context"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Deps struct {
	Storage     Storage
	Guard       InFlightGuard
	Verifier    Verifier
	Provisioner provisioning.Adapter
	Reconciler  Reconciler
	Completer   Completer
	Scheduler   Scheduler
	// Alerter, Publisher and Metrics are optional.
	Alerter   Alerter
	Publisher Publisher
	Metrics   Metrics
	Logger    *slog.Logger
}

type Correlator struct {
	Deps
	tracer trace.Tracer
}

func New(deps Deps) *Correlator {
	return &Correlator{
		Deps:   deps,
		tracer: otel.Tracer("iptv-bot/correlator"),
	}
}

// Handle processes one notification. A *apperrors.CorrelationError means the
// notification was dropped on purpose; callers log it and acknowledge the delivery.
func (c *Correlator) Handle(ctx context.Context, n Notification) (outcome Outcome, err error) {
	ctx, span := c.tracer.Start(ctx, "correlator.handle", trace.WithAttributes(
		attribute.String("payment_id", n.PaymentID),
		attribute.String("type", n.Type),
	))
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.Metrics != nil {
			c.Metrics.ObserveNotification(string(outcome))
		}
	}()

	if _, ok := acceptedTypes[n.Type]; !ok || n.PaymentID == "" {
		return OutcomeIgnored, &apperrors.CorrelationError{PaymentID: n.PaymentID, Reason: apperrors.CorrelationUnsupported}
	}

	release, ok, err := c.Guard.Acquire(ctx, n.PaymentID)
	if err != nil {
		return "", fmt.Errorf("acquire in-flight guard: %w", err)
	}
	if !ok {
		return OutcomeDropped, &apperrors.CorrelationError{PaymentID: n.PaymentID, Reason: apperrors.CorrelationInFlight}
	}
	defer release()

	pending, err := c.Storage.GetPendingPayment(ctx, payment.GetCriteria{PaymentID: &n.PaymentID})
	if err != nil {
		return "", apperrors.Persistence("get pending payment", err)
	}
	if pending == nil {
		c.Logger.Warn("Notification for unknown payment", "payment_id", n.PaymentID, "type", n.Type)
		return OutcomeDropped, &apperrors.CorrelationError{PaymentID: n.PaymentID, Reason: apperrors.CorrelationUnknown}
	}
	if pending.Status != payment.StatusPending {
		return OutcomeDropped, &apperrors.CorrelationError{PaymentID: n.PaymentID, Reason: apperrors.CorrelationDuplicate}
	}

	status, err := c.Verifier.VerifyStatus(ctx, n.PaymentID)
	if err != nil {
		return "", fmt.Errorf("verify payment %s: %w", n.PaymentID, err)
	}

	switch status {
	case payment.StatusRejected:
		won, err := c.Storage.CompareAndSwapStatus(ctx, n.PaymentID, payment.StatusPending, payment.StatusRejected)
		if err != nil {
			return "", apperrors.Persistence("reject payment", err)
		}
		if !won {
			return OutcomeDropped, &apperrors.CorrelationError{PaymentID: n.PaymentID, Reason: apperrors.CorrelationDuplicate}
		}
		c.Logger.Info("Payment rejected", "payment_id", n.PaymentID, "phone", pending.Phone)
		return OutcomeRejected, nil

	case payment.StatusApproved:
		won, err := c.Storage.CompareAndSwapStatus(ctx, n.PaymentID, payment.StatusPending, payment.StatusApproved)
		if err != nil {
			return "", apperrors.Persistence("approve payment", err)
		}
		if !won {
			return OutcomeDropped, &apperrors.CorrelationError{PaymentID: n.PaymentID, Reason: apperrors.CorrelationDuplicate}
		}

		c.Logger.Info("Payment approved, provisioning",
			"payment_id", n.PaymentID,
			"phone", pending.Phone,
			"context", pending.Context,
			"username", pending.Snapshot.Username)

		approved := *pending
		c.Scheduler.Submit(ctx, "provision "+n.PaymentID, func(ctx context.Context) {
			c.provision(ctx, approved)
		})
		return OutcomeApproved, nil

	default:
		return OutcomePending, nil
	}
}

// provision runs the frozen snapshot against the provider and reports the result.
func (c *Correlator) provision(ctx context.Context, p payment.PendingPayment) {
	snap := p.Snapshot

	var (
		result provisioning.Snapshot
		err    error
	)
	switch p.Context {
	case payment.ContextRenewal:
		result, err = c.Provisioner.RenewAccount(ctx, snap.Username, snap.Months)
	default:
		result, err = c.Provisioner.CreateAccount(ctx, snap.Username, snap.Connections, snap.Months)
	}
	if err != nil {
		c.fail(ctx, p, err)
		return
	}

	reconciled, err := c.Reconciler.Reconcile(ctx, reconcile.Request{
		Phone:    p.Phone,
		Username: snap.Username,
		Snapshot: result,
		Fallback: reconcile.Fallback{
			Months:      snap.Months,
			Connections: snap.Connections,
			PlanLabel:   snap.PlanLabel,
		},
	})
	if err != nil {
		c.fail(ctx, p, fmt.Errorf("reconcile: %w", err))
		return
	}

	done := conversation.Completion{
		Phone:     p.Phone,
		PaymentID: p.PaymentID,
		Context:   p.Context,
		Account:   reconciled.Account,
	}
	if err := c.Completer.Succeeded(ctx, done); err != nil {
		c.Logger.Error("Failed to send completion", "payment_id", p.PaymentID, "error", err)
	}

	c.log(ctx, syslogs.KindInfo,
		fmt.Sprintf("%s concluída para %s", p.Context, snap.Username),
		fmt.Sprintf("payment_id=%s phone=%s changed=%s", p.PaymentID, p.Phone, strings.Join(reconciled.Changes.Fields(), ",")))
	c.publish(ctx, EventAccountProvisioned, p, "")
}

// fail leaves the payment approved and flags it for an operator.
func (c *Correlator) fail(ctx context.Context, p payment.PendingPayment, cause error) {
	kind := provisioning.KindOf(cause)
	reason := fmt.Sprintf("%s: %v", kind, cause)

	c.Logger.Error("Provisioning failed",
		"payment_id", p.PaymentID,
		"phone", p.Phone,
		"username", p.Snapshot.Username,
		"kind", kind,
		"error", cause)

	if err := c.Storage.MarkManualReview(ctx, p.PaymentID, reason); err != nil {
		c.Logger.Error("Failed to flag payment for manual review", "payment_id", p.PaymentID, "error", err)
	}

	c.log(ctx, syslogs.KindError,
		fmt.Sprintf("Falha no provisionamento de %s (%s)", p.Snapshot.Username, p.Context),
		fmt.Sprintf("payment_id=%s phone=%s reason=%s", p.PaymentID, p.Phone, reason))

	if c.Alerter != nil {
		text := fmt.Sprintf("⚠️ Provisioning failed\npayment: %s\nphone: %s\nusername: %s\ncontext: %s\nreason: %s",
			p.PaymentID, p.Phone, p.Snapshot.Username, p.Context, reason)
		if err := c.Alerter.Alert(ctx, text); err != nil {
			c.Logger.Warn("Failed to alert operators", "payment_id", p.PaymentID, "error", err)
		}
	}

	c.publish(ctx, EventProvisioningFailed, p, reason)

	if err := c.Completer.Failed(ctx, conversation.Completion{Phone: p.Phone, PaymentID: p.PaymentID, Context: p.Context}); err != nil {
		c.Logger.Error("Failed to send failure notice", "payment_id", p.PaymentID, "error", err)
	}
}

func (c *Correlator) log(ctx context.Context, kind syslogs.Kind, message, details string) {
	if err := c.Storage.CreateSystemLog(ctx, syslogs.Entry{Kind: kind, Message: message, Details: details}); err != nil {
		c.Logger.Warn("Failed to write system log", "error", err)
	}
}

func (c *Correlator) publish(ctx context.Context, routingKey string, p payment.PendingPayment, reason string) {
	if c.Publisher == nil {
		return
	}
	event := Event{
		Type:       routingKey,
		PaymentID:  p.PaymentID,
		Phone:      p.Phone,
		Username:   p.Snapshot.Username,
		Context:    string(p.Context),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	if err := c.Publisher.Publish(ctx, routingKey, event); err != nil {
		c.Logger.Warn("Failed to publish event", "type", routingKey, "payment_id", p.PaymentID, "error", err)
	}
}
