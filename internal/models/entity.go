package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCashIn      TransactionType = "CASH_IN"
	TransactionPayout      TransactionType = "PAYOUT"
	TransactionFee         TransactionType = "FEE"
	TransactionFeeReversal TransactionType = "FEE_REVERSAL"
	TransactionReversal    TransactionType = "REVERSAL"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

type Wallet struct {
	ID          uuid.UUID       `db:"id" json:"walletId"`
	OwnerID     uuid.UUID       `db:"owner_id" json:"ownerId"`
	Balance     decimal.Decimal `db:"balance" json:"balance"`
	Currency    string          `db:"currency" json:"currency"`
	IsActive    bool            `db:"is_active" json:"isActive"`
	KYCVerified bool            `db:"kyc_verified" json:"kycVerified"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

type WalletKYC struct {
	WalletID         uuid.UUID  `db:"wallet_id" json:"walletId"`
	KYCLevel         string     `db:"kyc_level" json:"kycLevel"`
	Verified         bool       `db:"verified" json:"verified"`
	FullName         string     `db:"full_name" json:"fullName"`
	IDDocumentType   string     `db:"id_document_type" json:"idDocumentType"`
	IDDocumentNumber string     `db:"id_document_number" json:"idDocumentNumber"`
	VerifiedAt       *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

// WalletTransaction is one signed ledger entry. Positive amounts credit the wallet.
type WalletTransaction struct {
	ID                   uuid.UUID         `db:"id" json:"id"`
	WalletID             uuid.UUID         `db:"wallet_id" json:"walletId"`
	Amount               decimal.Decimal   `db:"amount" json:"amount"`
	Fee                  decimal.Decimal   `db:"fee" json:"fee"`
	Type                 TransactionType   `db:"type" json:"type"`
	Status               TransactionStatus `db:"status" json:"status"`
	PaymentID            *uuid.UUID        `db:"payment_id" json:"paymentId,omitempty"`
	RelatedTransactionID *uuid.UUID        `db:"related_transaction_id" json:"relatedTransactionId,omitempty"`
	Reference            string            `db:"reference" json:"reference"`
	CorrelationID        string            `db:"correlation_id" json:"correlationId"`
	ApprovedBy           *uuid.UUID        `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt           *time.Time        `db:"approved_at" json:"approvedAt,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"createdAt"`
}

type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	WalletID      uuid.UUID       `db:"wallet_id" json:"walletId"`
	Reference     string          `db:"reference" json:"reference"`
	ExternalID    *string         `db:"external_id" json:"externalId,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	Status        PaymentStatus   `db:"status" json:"status"`
	Provider      string          `db:"provider" json:"provider"`
	PatronPhone   string          `db:"patron_phone" json:"patronPhone,omitempty"`
	PatronEmail   string          `db:"patron_email" json:"patronEmail,omitempty"`
	PatronName    string          `db:"patron_name" json:"patronName,omitempty"`
	PatronMessage string          `db:"patron_message" json:"patronMessage,omitempty"`
	Metadata      map[string]any  `db:"metadata" json:"metadata,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
	IsDeleted     bool            `db:"is_deleted" json:"-"`
	DeletedAt     *time.Time      `db:"deleted_at" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

type WebhookLogStatus string

const (
	WebhookReceived  WebhookLogStatus = "received"
	WebhookProcessed WebhookLogStatus = "processed"
	WebhookFailed    WebhookLogStatus = "failed"
	WebhookIgnored   WebhookLogStatus = "ignored"
)

// PaymentWebhookLog is an append-only record of an accepted gateway callback.
type PaymentWebhookLog struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	Provider         string           `db:"provider" json:"provider"`
	EventType        string           `db:"event_type" json:"eventType"`
	ExternalID       string           `db:"external_id" json:"externalId"`
	RawPayload       string           `db:"raw_payload" json:"rawPayload"`
	ParsedPayload    map[string]any   `db:"parsed_payload" json:"parsedPayload"`
	Status           WebhookLogStatus `db:"status" json:"status"`
	ErrorMessage     string           `db:"error_message" json:"errorMessage,omitempty"`
	PaymentID        *uuid.UUID       `db:"payment_id" json:"paymentId,omitempty"`
	ProcessingTimeMS int64            `db:"processing_time_ms" json:"processingTimeMs"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}
