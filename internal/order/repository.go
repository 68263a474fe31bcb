package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"vestra-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID uint) ([]*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
	ListPendingBefore(ctx context.Context, method PaymentMethod, before time.Time) ([]*Order, error)
	Delete(ctx context.Context, id string) error

	// SetExternalRef records the gateway reference at most once.
	SetExternalRef(ctx context.Context, id, ref string) error

	UpdateStatus(ctx context.Context, id, status string) error

	// The Mark*IfPending methods are conditional writes: they succeed
	// only while the order is still PENDING and report whether this
	// call performed the transition.
	MarkPaidIfPending(ctx context.Context, id, txnID string) (bool, error)
	MarkFailedIfPending(ctx context.Context, id string) (bool, error)
	MarkCancelledIfPending(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `id, user_id, items, amount, address, payment_method,
	payment_state, external_ref, external_txn_id, status, created_at, updated_at`

func (r *repository) Create(ctx context.Context, o *Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, items, amount, address,
			payment_method, payment_state, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`,
		o.ID, o.UserID, itemsJSON, o.Amount, addressJSON,
		o.PaymentMethod, o.PaymentState, o.Status, o.CreatedAt,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("db: failed to insert order",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (r *repository) ListByUser(ctx context.Context, userID uint) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *repository) ListAll(ctx context.Context) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *repository) ListPendingBefore(ctx context.Context, method PaymentMethod, before time.Time) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payment_state = $1 AND payment_method = $2 AND created_at < $3
		ORDER BY created_at
	`, StatePending, method, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) SetExternalRef(ctx context.Context, id, ref string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET external_ref = $2, updated_at = now()
		WHERE id = $1 AND external_ref IS NULL
	`, id, ref)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) MarkPaidIfPending(ctx context.Context, id, txnID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = $2,
		    external_txn_id = COALESCE(external_txn_id, NULLIF($3, '')),
		    updated_at = now()
		WHERE id = $1 AND payment_state = $4
	`, id, StatePaid, txnID, StatePending)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) MarkFailedIfPending(ctx context.Context, id string) (bool, error) {
	return r.terminateIfPending(ctx, id, StateFailed)
}

func (r *repository) MarkCancelledIfPending(ctx context.Context, id string) (bool, error) {
	return r.terminateIfPending(ctx, id, StateCancelled)
}

func (r *repository) terminateIfPending(ctx context.Context, id string, state PaymentState) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = $2, updated_at = now()
		WHERE id = $1 AND payment_state = $3
	`, id, state, StatePending)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o           Order
		itemsJSON   []byte
		addressJSON []byte
	)

	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Amount, &addressJSON,
		&o.PaymentMethod, &o.PaymentState, &o.ExternalRef, &o.ExternalTxnID,
		&o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return nil, err
	}

	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
