package models

import "strings"

// PaymentStatus mirrors the gateway's deposit vocabulary.
type PaymentStatus string

const (
	PaymentPending          PaymentStatus = "pending"
	PaymentSubmitted        PaymentStatus = "submitted"
	PaymentAccepted         PaymentStatus = "accepted"
	PaymentProcessing       PaymentStatus = "processing"
	PaymentInReconciliation PaymentStatus = "in_reconciliation"

	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentExpired   PaymentStatus = "expired"
)

var NonTerminalPaymentStatuses = []PaymentStatus{
	PaymentPending,
	PaymentSubmitted,
	PaymentAccepted,
	PaymentProcessing,
	PaymentInReconciliation,
}

var TerminalPaymentStatuses = []PaymentStatus{
	PaymentCompleted,
	PaymentFailed,
	PaymentRejected,
	PaymentCancelled,
	PaymentExpired,
}

// ParsePaymentStatus normalizes a gateway status string.
func ParsePaymentStatus(raw string) PaymentStatus {
	return PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
}

func (s PaymentStatus) IsTerminal() bool {
	for _, t := range TerminalPaymentStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsNonTerminal() bool {
	for _, t := range NonTerminalPaymentStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsKnown() bool {
	return s.IsTerminal() || s.IsNonTerminal()
}

// ResolvePaymentStatus applies the transition guard: a terminal incoming
// status is always written, anything else keeps the stored one.
func ResolvePaymentStatus(stored, incoming PaymentStatus) PaymentStatus {
	if incoming.IsTerminal() {
		return incoming
	}
	return stored
}

// EventType is the webhook log tag for a deposit callback.
func (s PaymentStatus) EventType() string {
	return "deposit." + string(s)
}
