package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sepiso23/creator-monetization/internal/models"
	"github.com/sepiso23/creator-monetization/internal/repository"
)

// WalletSummary is a wallet with its balance net of pending payouts.
type WalletSummary struct {
	models.Wallet
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

type WalletService struct {
	store    repository.Store
	ledger   *LedgerService
	logger   *slog.Logger
	currency string
}

func NewWalletService(store repository.Store, ledger *LedgerService, currency string, logger *slog.Logger) *WalletService {
	return &WalletService{
		store:    store,
		ledger:   ledger,
		logger:   logger,
		currency: currency,
	}
}

// CreateWallet creates a wallet and its KYC record in one unit of work.
func (s *WalletService) CreateWallet(ctx context.Context, req models.CreateWalletRequest, actor *Actor) (*models.Wallet, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	wallet := &models.Wallet{
		ID:       uuid.New(),
		OwnerID:  req.OwnerID,
		Balance:  decimal.Zero,
		Currency: currency,
		IsActive: true,
	}
	kyc := &models.WalletKYC{
		KYCLevel: "basic",
		FullName: req.FullName,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		return q.CreateWallet(ctx, wallet, kyc)
	})
	if err != nil {
		s.logger.Warn("CreateWallet failed",
			slog.String("owner_id", req.OwnerID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	s.logger.Info("Wallet created",
		slog.String("wallet_id", wallet.ID.String()),
		slog.String("owner_id", wallet.OwnerID.String()),
	)
	return wallet, nil
}

func (s *WalletService) GetWallet(ctx context.Context, walletID uuid.UUID) (*WalletSummary, error) {
	wallet, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	available, err := s.ledger.AvailableBalance(ctx, walletID, wallet.Balance)
	if err != nil {
		return nil, err
	}
	return &WalletSummary{Wallet: *wallet, AvailableBalance: available}, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, walletID)
}

func (s *WalletService) VerifyKYC(ctx context.Context, walletID uuid.UUID, actor *Actor) (*models.Wallet, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var wallet *models.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		if _, err := q.LockWallet(ctx, walletID); err != nil {
			return err
		}
		if err := q.SetKYCVerified(ctx, walletID, true); err != nil {
			return err
		}
		var err error
		wallet, err = q.GetWallet(ctx, walletID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Wallet KYC verified",
		slog.String("wallet_id", walletID.String()),
		slog.String("verified_by", actor.ID.String()),
	)
	return wallet, nil
}

func (s *WalletService) RecalculateBalance(ctx context.Context, walletID uuid.UUID, actor *Actor) (decimal.Decimal, error) {
	if err := requireStaff(actor); err != nil {
		return decimal.Zero, err
	}
	return s.ledger.RecalculateBalance(ctx, walletID)
}
