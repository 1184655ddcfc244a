package service

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInvalidPayload      = errors.New("invalid callback payload")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrGatewayRejected     = errors.New("payment gateway rejected request")
)

// Actor is whoever triggers an operation. A nil *Actor means the system itself.
type Actor struct {
	ID      uuid.UUID
	IsStaff bool
}

func (a *Actor) idPtr() *uuid.UUID {
	if a == nil {
		return nil
	}
	id := a.ID
	return &id
}

func requireStaff(a *Actor) error {
	if a == nil || !a.IsStaff {
		return ErrPermissionDenied
	}
	return nil
}
