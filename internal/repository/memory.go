package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sepiso23/creator-monetization/internal/models"
)

// MemoryStore keeps the ledger in process memory. Units of work are
// serialized by a single mutex and rolled back from a snapshot.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

type memoryData struct {
	wallets      map[uuid.UUID]models.Wallet
	kyc          map[uuid.UUID]models.WalletKYC
	transactions map[uuid.UUID]models.WalletTransaction
	txOrder      []uuid.UUID
	payments     map[uuid.UUID]models.Payment
	webhookLogs  []models.PaymentWebhookLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		wallets:      make(map[uuid.UUID]models.Wallet),
		kyc:          make(map[uuid.UUID]models.WalletKYC),
		transactions: make(map[uuid.UUID]models.WalletTransaction),
		payments:     make(map[uuid.UUID]models.Payment),
	}}
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		wallets:      make(map[uuid.UUID]models.Wallet, len(d.wallets)),
		kyc:          make(map[uuid.UUID]models.WalletKYC, len(d.kyc)),
		transactions: make(map[uuid.UUID]models.WalletTransaction, len(d.transactions)),
		txOrder:      append([]uuid.UUID(nil), d.txOrder...),
		payments:     make(map[uuid.UUID]models.Payment, len(d.payments)),
		webhookLogs:  append([]models.PaymentWebhookLog(nil), d.webhookLogs...),
	}
	for k, v := range d.wallets {
		c.wallets[k] = v
	}
	for k, v := range d.kyc {
		c.kyc[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	return c
}

func (s *MemoryStore) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*MemoryStore)
	return owner == s
}

func (s *MemoryStore) enter(ctx context.Context) func() {
	if s.owns(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	if !s.owns(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
		ctx = context.WithValue(ctx, txKey{}, s)
	}
	snapshot := s.data.clone()
	if err := fn(ctx, s); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) walletView(w models.Wallet) *models.Wallet {
	w.KYCVerified = s.data.kyc[w.ID].Verified
	return &w
}

func (s *MemoryStore) CreateWallet(ctx context.Context, w *models.Wallet, kyc *models.WalletKYC) error {
	defer s.enter(ctx)()
	if _, ok := s.data.wallets[w.ID]; ok {
		return ErrWalletAlreadyExist
	}
	for _, existing := range s.data.wallets {
		if existing.OwnerID == w.OwnerID {
			return ErrWalletAlreadyExist
		}
	}
	now := time.Now()
	w.Balance = decimal.Zero
	w.CreatedAt, w.UpdatedAt = now, now
	kyc.WalletID = w.ID
	kyc.CreatedAt = now
	w.KYCVerified = kyc.Verified
	s.data.wallets[w.ID] = *w
	s.data.kyc[w.ID] = *kyc
	return nil
}

func (s *MemoryStore) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	defer s.enter(ctx)()
	w, ok := s.data.wallets[id]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return s.walletView(w), nil
}

func (s *MemoryStore) LockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.GetWallet(ctx, id)
}

func (s *MemoryStore) ListWalletsWithBalance(ctx context.Context) ([]models.Wallet, error) {
	defer s.enter(ctx)()
	var out []models.Wallet
	for _, w := range s.data.wallets {
		if w.IsActive && w.Balance.IsPositive() {
			out = append(out, *s.walletView(w))
		}
	}
	sortWallets(out)
	return out, nil
}

func (s *MemoryStore) SetWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	defer s.enter(ctx)()
	w, ok := s.data.wallets[id]
	if !ok {
		return ErrWalletNotFound
	}
	if balance.IsNegative() {
		return fmt.Errorf("%w: balance %s", ErrConstraint, balance)
	}
	w.Balance = balance
	w.UpdatedAt = time.Now()
	s.data.wallets[id] = w
	return nil
}

func (s *MemoryStore) SetKYCVerified(ctx context.Context, walletID uuid.UUID, verified bool) error {
	defer s.enter(ctx)()
	k, ok := s.data.kyc[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	k.Verified = verified
	k.VerifiedAt = nil
	if verified {
		now := time.Now()
		k.VerifiedAt = &now
	}
	s.data.kyc[walletID] = k
	return nil
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, t *models.WalletTransaction) error {
	defer s.enter(ctx)()
	if _, ok := s.data.wallets[t.WalletID]; !ok {
		return fmt.Errorf("%w: unknown wallet %s", ErrConstraint, t.WalletID)
	}
	if (t.Type == models.TransactionFee || t.Type == models.TransactionFeeReversal) && t.RelatedTransactionID == nil {
		return fmt.Errorf("%w: %s requires a related transaction", ErrConstraint, t.Type)
	}
	if t.RelatedTransactionID != nil {
		if _, ok := s.data.transactions[*t.RelatedTransactionID]; !ok {
			return fmt.Errorf("%w: unknown related transaction %s", ErrConstraint, *t.RelatedTransactionID)
		}
	}
	for _, existing := range s.data.transactions {
		if existing.Reference == t.Reference {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, t.Reference)
		}
		if t.Type == models.TransactionCashIn && existing.Type == models.TransactionCashIn &&
			t.PaymentID != nil && existing.PaymentID != nil && *t.PaymentID == *existing.PaymentID {
			return fmt.Errorf("%w: payment %s already credited", ErrDuplicateTransaction, *t.PaymentID)
		}
	}
	t.CreatedAt = time.Now()
	s.data.transactions[t.ID] = *t
	s.data.txOrder = append(s.data.txOrder, t.ID)
	return nil
}

func (s *MemoryStore) TransactionExists(ctx context.Context, reference string) (bool, error) {
	defer s.enter(ctx)()
	for _, t := range s.data.transactions {
		if t.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	defer s.enter(ctx)()
	t, ok := s.data.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &t, nil
}

func (s *MemoryStore) LockTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	return s.GetTransaction(ctx, id)
}

func (s *MemoryStore) UpdateTransactionStatus(ctx context.Context, t *models.WalletTransaction) error {
	defer s.enter(ctx)()
	stored, ok := s.data.transactions[t.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	stored.Status = t.Status
	stored.ApprovedBy = t.ApprovedBy
	stored.ApprovedAt = t.ApprovedAt
	s.data.transactions[t.ID] = stored
	return nil
}

func (s *MemoryStore) FindRelatedTransaction(
	ctx context.Context,
	parentID uuid.UUID,
	txType models.TransactionType,
	status models.TransactionStatus,
) (*models.WalletTransaction, error) {
	defer s.enter(ctx)()
	for _, id := range s.data.txOrder {
		t := s.data.transactions[id]
		if t.RelatedTransactionID != nil && *t.RelatedTransactionID == parentID && t.Type == txType && t.Status == status {
			return &t, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (s *MemoryStore) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	defer s.enter(ctx)()
	var out []models.WalletTransaction
	for _, id := range s.data.txOrder {
		if t := s.data.transactions[id]; t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) SumTransactions(ctx context.Context, walletID uuid.UUID, status models.TransactionStatus) (decimal.Decimal, error) {
	defer s.enter(ctx)()
	sum := decimal.Zero
	for _, t := range s.data.transactions {
		if t.WalletID == walletID && t.Status == status {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func copyPayment(p models.Payment) *models.Payment {
	if p.Metadata != nil {
		md := make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			md[k] = v
		}
		p.Metadata = md
	}
	return &p
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	defer s.enter(ctx)()
	if _, ok := s.data.wallets[p.WalletID]; !ok {
		return ErrWalletNotFound
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount %s", ErrConstraint, p.Amount)
	}
	for _, existing := range s.data.payments {
		if existing.Reference == p.Reference {
			return fmt.Errorf("%w: payment reference %s", ErrConstraint, p.Reference)
		}
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.data.payments[p.ID] = *copyPayment(*p)
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Payment, error) {
	defer s.enter(ctx)()
	p, ok := s.data.payments[id]
	if !ok || (p.IsDeleted && !includeDeleted) {
		return nil, ErrPaymentNotFound
	}
	return copyPayment(p), nil
}

func (s *MemoryStore) LockPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.GetPayment(ctx, id, false)
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	defer s.enter(ctx)()
	stored, ok := s.data.payments[p.ID]
	if !ok {
		return ErrPaymentNotFound
	}
	stored.Status = p.Status
	stored.ExternalID = p.ExternalID
	stored.Metadata = p.Metadata
	stored.CompletedAt = p.CompletedAt
	stored.UpdatedAt = time.Now()
	p.UpdatedAt = stored.UpdatedAt
	s.data.payments[p.ID] = *copyPayment(stored)
	return nil
}

func (s *MemoryStore) ListPaymentsByStatus(ctx context.Context, statuses []models.PaymentStatus, includeDeleted bool) ([]models.Payment, error) {
	defer s.enter(ctx)()
	var out []models.Payment
	for _, p := range s.data.payments {
		if p.IsDeleted && !includeDeleted {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				out = append(out, *copyPayment(p))
				break
			}
		}
	}
	sortPayments(out)
	return out, nil
}

func (s *MemoryStore) SoftDeletePayment(ctx context.Context, id uuid.UUID) error {
	defer s.enter(ctx)()
	p, ok := s.data.payments[id]
	if !ok || p.IsDeleted {
		return ErrPaymentNotFound
	}
	now := time.Now()
	p.IsDeleted = true
	p.DeletedAt = &now
	p.UpdatedAt = now
	s.data.payments[id] = p
	return nil
}

func (s *MemoryStore) InsertWebhookLog(ctx context.Context, l *models.PaymentWebhookLog) error {
	defer s.enter(ctx)()
	if l.ExternalID != "" {
		for _, existing := range s.data.webhookLogs {
			if existing.ExternalID == l.ExternalID {
				return fmt.Errorf("%w: %s", ErrDuplicateWebhook, l.ExternalID)
			}
		}
	}
	l.CreatedAt = time.Now()
	s.data.webhookLogs = append(s.data.webhookLogs, *l)
	return nil
}

func (s *MemoryStore) WebhookLogExists(ctx context.Context, externalID string) (bool, error) {
	defer s.enter(ctx)()
	for _, l := range s.data.webhookLogs {
		if l.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) HasWebhookLogEvent(ctx context.Context, paymentID uuid.UUID, eventTypes []string) (bool, error) {
	defer s.enter(ctx)()
	for _, l := range s.data.webhookLogs {
		if l.PaymentID == nil || *l.PaymentID != paymentID {
			continue
		}
		for _, et := range eventTypes {
			if l.EventType == et {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryStore) ListWebhookLogs(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentWebhookLog, error) {
	defer s.enter(ctx)()
	var out []models.PaymentWebhookLog
	for _, l := range s.data.webhookLogs {
		if l.PaymentID != nil && *l.PaymentID == paymentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func sortWallets(ws []models.Wallet) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].ID.String() < ws[j].ID.String()
		}
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}

func sortPayments(ps []models.Payment) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID.String() < ps[j].ID.String()
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
