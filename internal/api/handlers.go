// Package api exposes the webhook endpoints of the chat channel and the payment gateway.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/dispatch"
	"iptv-bot/internal/infra/whatsapp"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type Handler struct {
	inbound       Inbound
	notifications Notifications
	logger        *slog.Logger
}

func NewHandler(inbound Inbound, notifications Notifications, logger *slog.Logger) *Handler {
	return &Handler{
		inbound:       inbound,
		notifications: notifications,
		logger:        logger,
	}
}

// Chat queues an inbound chat message. The reply is sent asynchronously.
func (h *Handler) Chat(c echo.Context) error {
	phone := whatsapp.Phone(c.FormValue("From"))
	text := normalizeText(c.FormValue("Body"))
	if phone == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "From is required")
	}

	if err := h.inbound.Submit(c.Request().Context(), phone, text); err != nil {
		h.logger.Error("Failed to queue chat message", "error", err, "phone", phone)
		if errors.Is(err, dispatch.ErrStopped) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
		}
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	return c.Blob(http.StatusOK, "application/xml", []byte(emptyTwiML))
}

// Payment feeds a gateway notification to the correlator. Notifications that cannot be
// correlated are acknowledged so the gateway stops retrying them.
func (h *Handler) Payment(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	n, err := decodeNotification(raw)
	if err != nil {
		h.logger.Warn("Rejected payment notification", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.notifications.Handle(c.Request().Context(), n)
	if err != nil {
		var cerr *apperrors.CorrelationError
		if errors.As(err, &cerr) {
			return c.String(http.StatusOK, formatOutcome(outcome))
		}
		h.logger.Error("Failed to handle payment notification", "error", err, "payment_id", n.PaymentID, "type", n.Type)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	return c.String(http.StatusOK, formatOutcome(outcome))
}

func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// normalizeText trims surrounding whitespace and carriage returns some channels add.
func normalizeText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}
