package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositCallback is the gateway's deposit webhook body.
type DepositCallback struct {
	DepositID             string         `json:"depositId"`
	Status                string         `json:"status"`
	ProviderTransactionID string         `json:"providerTransactionId"`
	Amount                string         `json:"amount"`
	Currency              string         `json:"currency"`
	Payer                 map[string]any `json:"payer"`
	FailureReason         map[string]any `json:"failureReason,omitempty"`
}

type TipRequest struct {
	WalletID      uuid.UUID       `json:"walletId" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required,gt=0"`
	PatronPhone   string          `json:"patronPhone" binding:"required"`
	Provider      string          `json:"provider" binding:"required"`
	PatronEmail   string          `json:"patronEmail"`
	PatronName    string          `json:"patronName"`
	PatronMessage string          `json:"patronMessage"`
}

type CreateWalletRequest struct {
	OwnerID  uuid.UUID `json:"ownerId" binding:"required"`
	Currency string    `json:"currency"`
	FullName string    `json:"fullName"`
}

type FinalizePayoutRequest struct {
	Success *bool `json:"success" binding:"required"`
}
