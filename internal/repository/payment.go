package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"stream-wallet/internal/model"
)

// PaymentRepository handles gateway checkout records.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new PaymentRepository instance.
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

const paymentColumns = `merchant_order_id, account_id, gift_id, gift_name, diamond_amount, amount_minor,
	currency, status, gateway_transaction_id, redirect_url, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.MerchantOrderID,
		&p.AccountID,
		&p.GiftID,
		&p.GiftName,
		&p.DiamondAmount,
		&p.AmountMinor,
		&p.Currency,
		&p.Status,
		&p.GatewayTxnID,
		&p.RedirectURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a PENDING payment.
// Returns ErrDuplicate if the merchant order id is already used.
func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	const query = `
		INSERT INTO payments (merchant_order_id, account_id, gift_id, gift_name, diamond_amount, amount_minor,
			currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', NOW(), NOW())
		RETURNING ` + paymentColumns

	created, err := scanPayment(r.db.QueryRow(ctx, query,
		p.MerchantOrderID,
		p.AccountID,
		p.GiftID,
		p.GiftName,
		p.DiamondAmount,
		p.AmountMinor,
		p.Currency,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return created, nil
}

// GetByOrderID retrieves a payment.
// Returns ErrPaymentNotFound if the payment does not exist.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE merchant_order_id = $1`
	return r.get(ctx, query, orderID)
}

// GetForUpdate retrieves a payment and locks its row until the enclosing
// transaction ends.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, orderID string) (*model.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE merchant_order_id = $1 FOR UPDATE`
	return r.get(ctx, query, orderID)
}

func (r *PaymentRepository) get(ctx context.Context, query, orderID string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// SetCheckout stores the gateway's redirect handle and transaction id.
func (r *PaymentRepository) SetCheckout(ctx context.Context, orderID string, redirectURL, gatewayTxnID *string) error {
	const query = `
		UPDATE payments
		SET redirect_url = $2, gateway_transaction_id = COALESCE($3, gateway_transaction_id), updated_at = NOW()
		WHERE merchant_order_id = $1
	`

	result, err := r.db.Exec(ctx, query, orderID, redirectURL, gatewayTxnID)
	if err != nil {
		return fmt.Errorf("failed to store checkout: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// SetStatus records a status change and, when known, the gateway
// transaction id.
func (r *PaymentRepository) SetStatus(ctx context.Context, orderID string, status model.PaymentStatus, gatewayTxnID *string) error {
	const query = `
		UPDATE payments
		SET status = $2, gateway_transaction_id = COALESCE($3, gateway_transaction_id), updated_at = NOW()
		WHERE merchant_order_id = $1
	`

	result, err := r.db.Exec(ctx, query, orderID, status, gatewayTxnID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// List retrieves payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, error) {
	var (
		conds []string
		args  []any
	)
	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.GiftID != nil {
		args = append(args, *f.GiftID)
		conds = append(conds, fmt.Sprintf("gift_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// ListPendingBefore retrieves PENDING payments created before cutoff.
// Used to resume watchers after a restart.
func (r *PaymentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	const query = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// DailyAnalytics aggregates payments created in [from, to) per day in loc.
func (r *PaymentRepository) DailyAnalytics(ctx context.Context, from, to time.Time, loc *time.Location) ([]*model.PaymentDay, error) {
	const query = `
		SELECT
			date_trunc('day', created_at AT TIME ZONE $3) AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'SUCCESS'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			(COALESCE(SUM(amount_minor) FILTER (WHERE status = 'SUCCESS'), 0) / 100.0)::text,
			COALESCE(SUM(diamond_amount) FILTER (WHERE status = 'SUCCESS'), 0)
		FROM payments
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day DESC
	`

	rows, err := r.db.Query(ctx, query, from, to, loc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payment analytics: %w", err)
	}
	defer rows.Close()

	var days []*model.PaymentDay
	for rows.Next() {
		var (
			d      model.PaymentDay
			amount string
		)
		if err := rows.Scan(&d.Day, &d.Total, &d.Successful, &d.Failed, &amount, &d.DiamondsSold); err != nil {
			return nil, fmt.Errorf("failed to scan payment day: %w", err)
		}
		if d.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		days = append(days, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment analytics: %w", err)
	}
	return days, nil
}
