package yookassa

import (
	"testing"

	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"

	"iptv-bot/internal/stories/payment"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   yoopayment.Status
		want payment.Status
	}{
		{yoopayment.Pending, payment.StatusPending},
		{yoopayment.WaitingForCapture, payment.StatusPending},
		{yoopayment.Succeeded, payment.StatusApproved},
		{yoopayment.Canceled, payment.StatusRejected},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := mapStatus(tt.in); got != tt.want {
				t.Errorf("mapStatus(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractPaymentURL(t *testing.T) {
	tests := []struct {
		name string
		in   *yoopayment.Payment
		want string
	}{
		{name: "redirect", in: &yoopayment.Payment{Confirmation: &yoopayment.Redirect{ConfirmationURL: "https://pay/1"}}, want: "https://pay/1"},
		{name: "map", in: &yoopayment.Payment{Confirmation: map[string]interface{}{"confirmation_url": "https://pay/2"}}, want: "https://pay/2"},
		{name: "missing", in: &yoopayment.Payment{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPaymentURL(tt.in); got != tt.want {
				t.Errorf("extractPaymentURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
