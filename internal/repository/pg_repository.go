package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sepiso23/creator-monetization/internal/models"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGStore struct {
	*pgQueries
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	return &PGStore{
		pgQueries: &pgQueries{db: pool, logger: logger},
		pool:      pool,
		logger:    logger,
	}
}

func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = s.pool.BeginTx(ctx, pgx.TxOptions{})
	}
	if err != nil {
		s.logger.Error("Failed to begin transaction", slog.Any("err", err))
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Error("Failed to rollback transaction", slog.Any("err", err))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx), &pgQueries{db: tx, logger: s.logger}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("Failed to commit transaction", slog.Any("err", err))
		return err
	}
	return nil
}

type pgQueries struct {
	db     dbtx
	logger *slog.Logger
}

type rowScanner interface {
	Scan(dest ...any) error
}

const walletSelect = `
	SELECT w.id, w.owner_id, w.balance, w.currency, w.is_active, COALESCE(k.verified, FALSE), w.created_at, w.updated_at
	FROM wallets w LEFT JOIN wallet_kyc k ON k.wallet_id = w.id`

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.Currency, &w.IsActive, &w.KYCVerified, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (q *pgQueries) CreateWallet(ctx context.Context, w *models.Wallet, kyc *models.WalletKYC) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO wallets (id, owner_id, balance, currency, is_active)
		VALUES ($1, $2, 0, $3, $4)
		RETURNING created_at, updated_at`,
		w.ID, w.OwnerID, w.Currency, w.IsActive,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrWalletAlreadyExist
		}
		q.logger.Error("Failed to create wallet",
			slog.String("wallet_id", w.ID.String()),
			slog.Any("err", err),
		)
		return err
	}

	err = q.db.QueryRow(ctx, `
		INSERT INTO wallet_kyc (wallet_id, kyc_level, verified, full_name, id_document_type, id_document_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		w.ID, kyc.KYCLevel, kyc.Verified, kyc.FullName, kyc.IDDocumentType, kyc.IDDocumentNumber,
	).Scan(&kyc.CreatedAt)
	if err != nil {
		q.logger.Error("Failed to create wallet kyc",
			slog.String("wallet_id", w.ID.String()),
			slog.Any("err", err),
		)
		return err
	}
	kyc.WalletID = w.ID
	w.KYCVerified = kyc.Verified
	return nil
}

func (q *pgQueries) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return q.wallet(ctx, walletSelect+" WHERE w.id = $1", id)
}

func (q *pgQueries) LockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return q.wallet(ctx, walletSelect+" WHERE w.id = $1 FOR UPDATE OF w", id)
}

func (q *pgQueries) wallet(ctx context.Context, sql string, id uuid.UUID) (*models.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		q.logger.Error("Failed to select wallet",
			slog.String("wallet_id", id.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	return w, nil
}

func (q *pgQueries) ListWalletsWithBalance(ctx context.Context) ([]models.Wallet, error) {
	rows, err := q.db.Query(ctx, walletSelect+" WHERE w.balance > 0 AND w.is_active ORDER BY w.created_at, w.id")
	if err != nil {
		q.logger.Error("Failed to list wallets", slog.Any("err", err))
		return nil, err
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func (q *pgQueries) SetWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, "UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2", balance, id)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: balance %s", ErrConstraint, balance)
		}
		q.logger.Error("Failed to update wallet balance",
			slog.String("wallet_id", id.String()),
			slog.Any("err", err),
		)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (q *pgQueries) SetKYCVerified(ctx context.Context, walletID uuid.UUID, verified bool) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallet_kyc
		SET verified = $1, verified_at = CASE WHEN $1 THEN NOW() ELSE NULL END
		WHERE wallet_id = $2`, verified, walletID)
	if err != nil {
		q.logger.Error("Failed to update wallet kyc",
			slog.String("wallet_id", walletID.String()),
			slog.Any("err", err),
		)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

const transactionColumns = `id, wallet_id, amount, fee, type, status, payment_id, related_transaction_id,
	reference, correlation_id, approved_by, approved_at, created_at`

func scanTransaction(row rowScanner) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Amount, &t.Fee, &t.Type, &t.Status, &t.PaymentID, &t.RelatedTransactionID,
		&t.Reference, &t.CorrelationID, &t.ApprovedBy, &t.ApprovedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *pgQueries) InsertTransaction(ctx context.Context, t *models.WalletTransaction) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, amount, fee, type, status, payment_id,
			related_transaction_id, reference, correlation_id, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		t.ID, t.WalletID, t.Amount, t.Fee, string(t.Type), string(t.Status), t.PaymentID,
		t.RelatedTransactionID, t.Reference, t.CorrelationID, t.ApprovedBy, t.ApprovedAt,
	).Scan(&t.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, t.Reference)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: %s", ErrConstraint, err.Error())
		case isCheckViolation(err):
			return fmt.Errorf("%w: %s", ErrConstraint, err.Error())
		}
		q.logger.Error("Failed to insert transaction",
			slog.String("wallet_id", t.WalletID.String()),
			slog.String("reference", t.Reference),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

func (q *pgQueries) TransactionExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM wallet_transactions WHERE reference = $1)", reference).Scan(&exists)
	if err != nil {
		q.logger.Error("Failed to check transaction reference",
			slog.String("reference", reference),
			slog.Any("err", err),
		)
		return false, err
	}
	return exists, nil
}

func (q *pgQueries) GetTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	return q.transaction(ctx, "SELECT "+transactionColumns+" FROM wallet_transactions WHERE id = $1", id)
}

func (q *pgQueries) LockTransaction(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	return q.transaction(ctx, "SELECT "+transactionColumns+" FROM wallet_transactions WHERE id = $1 FOR UPDATE", id)
}

func (q *pgQueries) transaction(ctx context.Context, sql string, args ...any) (*models.WalletTransaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		q.logger.Error("Failed to select transaction", slog.Any("err", err))
		return nil, err
	}
	return t, nil
}

func (q *pgQueries) UpdateTransactionStatus(ctx context.Context, t *models.WalletTransaction) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallet_transactions SET status = $1, approved_by = $2, approved_at = $3 WHERE id = $4`,
		string(t.Status), t.ApprovedBy, t.ApprovedAt, t.ID)
	if err != nil {
		q.logger.Error("Failed to update transaction status",
			slog.String("transaction_id", t.ID.String()),
			slog.Any("err", err),
		)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (q *pgQueries) FindRelatedTransaction(
	ctx context.Context,
	parentID uuid.UUID,
	txType models.TransactionType,
	status models.TransactionStatus,
) (*models.WalletTransaction, error) {
	return q.transaction(ctx, "SELECT "+transactionColumns+` FROM wallet_transactions
		WHERE related_transaction_id = $1 AND type = $2 AND status = $3
		ORDER BY created_at LIMIT 1`, parentID, string(txType), string(status))
}

func (q *pgQueries) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	rows, err := q.db.Query(ctx, "SELECT "+transactionColumns+
		" FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at, id", walletID)
	if err != nil {
		q.logger.Error("Failed to list transactions",
			slog.String("wallet_id", walletID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	defer rows.Close()

	var txs []models.WalletTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (q *pgQueries) SumTransactions(ctx context.Context, walletID uuid.UUID, status models.TransactionStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE wallet_id = $1 AND status = $2`,
		walletID, string(status)).Scan(&sum)
	if err != nil {
		q.logger.Error("Failed to sum transactions",
			slog.String("wallet_id", walletID.String()),
			slog.Any("err", err),
		)
		return decimal.Zero, err
	}
	return sum, nil
}

const paymentColumns = `id, wallet_id, reference, external_id, amount, currency, status, provider,
	patron_phone, patron_email, patron_name, patron_message, metadata, completed_at,
	is_deleted, deleted_at, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.WalletID, &p.Reference, &p.ExternalID, &p.Amount, &p.Currency, &p.Status, &p.Provider,
		&p.PatronPhone, &p.PatronEmail, &p.PatronName, &p.PatronMessage, &p.Metadata, &p.CompletedAt,
		&p.IsDeleted, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *pgQueries) CreatePayment(ctx context.Context, p *models.Payment) error {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO payments (id, wallet_id, reference, external_id, amount, currency, status, provider,
			patron_phone, patron_email, patron_name, patron_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		p.ID, p.WalletID, p.Reference, p.ExternalID, p.Amount, p.Currency, string(p.Status), p.Provider,
		p.PatronPhone, p.PatronEmail, p.PatronName, p.PatronMessage, metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return ErrWalletNotFound
		case isCheckViolation(err), isUniqueViolation(err):
			return fmt.Errorf("%w: %s", ErrConstraint, err.Error())
		}
		q.logger.Error("Failed to create payment",
			slog.String("payment_id", p.ID.String()),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

func (q *pgQueries) GetPayment(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Payment, error) {
	return q.payment(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1 AND ($2 OR NOT is_deleted)", id, includeDeleted)
}

func (q *pgQueries) LockPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return q.payment(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1 AND NOT is_deleted FOR UPDATE", id)
}

func (q *pgQueries) payment(ctx context.Context, sql string, args ...any) (*models.Payment, error) {
	p, err := scanPayment(q.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		q.logger.Error("Failed to select payment", slog.Any("err", err))
		return nil, err
	}
	return p, nil
}

func (q *pgQueries) UpdatePayment(ctx context.Context, p *models.Payment) error {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := q.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $1, external_id = $2, metadata = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`,
		string(p.Status), p.ExternalID, metadata, p.CompletedAt, p.ID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPaymentNotFound
	}
	if err != nil {
		q.logger.Error("Failed to update payment",
			slog.String("payment_id", p.ID.String()),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

func (q *pgQueries) ListPaymentsByStatus(ctx context.Context, statuses []models.PaymentStatus, includeDeleted bool) ([]models.Payment, error) {
	rows, err := q.db.Query(ctx, "SELECT "+paymentColumns+
		" FROM payments WHERE status = ANY($1) AND ($2 OR NOT is_deleted) ORDER BY created_at, id",
		statusStrings(statuses), includeDeleted)
	if err != nil {
		q.logger.Error("Failed to list payments", slog.Any("err", err))
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (q *pgQueries) SoftDeletePayment(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE payments SET is_deleted = TRUE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		q.logger.Error("Failed to soft delete payment",
			slog.String("payment_id", id.String()),
			slog.Any("err", err),
		)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

const webhookLogColumns = `id, provider, event_type, external_id, raw_payload, parsed_payload, status,
	error_message, payment_id, processing_time_ms, created_at`

func (q *pgQueries) InsertWebhookLog(ctx context.Context, l *models.PaymentWebhookLog) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO payment_webhook_logs (id, provider, event_type, external_id, raw_payload, parsed_payload,
			status, error_message, payment_id, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		l.ID, l.Provider, l.EventType, l.ExternalID, l.RawPayload, l.ParsedPayload,
		string(l.Status), l.ErrorMessage, l.PaymentID, l.ProcessingTimeMS,
	).Scan(&l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateWebhook, l.ExternalID)
		}
		q.logger.Error("Failed to insert webhook log",
			slog.String("external_id", l.ExternalID),
			slog.Any("err", err),
		)
		return err
	}
	return nil
}

func (q *pgQueries) WebhookLogExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM payment_webhook_logs WHERE external_id = $1)", externalID).Scan(&exists)
	if err != nil {
		q.logger.Error("Failed to check webhook log",
			slog.String("external_id", externalID),
			slog.Any("err", err),
		)
		return false, err
	}
	return exists, nil
}

func (q *pgQueries) HasWebhookLogEvent(ctx context.Context, paymentID uuid.UUID, eventTypes []string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM payment_webhook_logs WHERE payment_id = $1 AND event_type = ANY($2))`,
		paymentID, eventTypes).Scan(&exists)
	if err != nil {
		q.logger.Error("Failed to check webhook events",
			slog.String("payment_id", paymentID.String()),
			slog.Any("err", err),
		)
		return false, err
	}
	return exists, nil
}

func (q *pgQueries) ListWebhookLogs(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentWebhookLog, error) {
	rows, err := q.db.Query(ctx, "SELECT "+webhookLogColumns+
		" FROM payment_webhook_logs WHERE payment_id = $1 ORDER BY created_at, id", paymentID)
	if err != nil {
		q.logger.Error("Failed to list webhook logs",
			slog.String("payment_id", paymentID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	defer rows.Close()

	var logs []models.PaymentWebhookLog
	for rows.Next() {
		var l models.PaymentWebhookLog
		if err := rows.Scan(
			&l.ID, &l.Provider, &l.EventType, &l.ExternalID, &l.RawPayload, &l.ParsedPayload, &l.Status,
			&l.ErrorMessage, &l.PaymentID, &l.ProcessingTimeMS, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
