package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	domain "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var placeholder = regexp.MustCompile(`\$\d+`)

var schemas = map[string]string{
	DriverPostgres: `CREATE TABLE IF NOT EXISTS payments (
	transaction_id TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL,
	customer_id    TEXT NOT NULL,
	total_amount   NUMERIC(19, 4) NOT NULL,
	payment_mode   TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
)`,
	DriverSQLite: `CREATE TABLE IF NOT EXISTS payments (
	transaction_id TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL,
	customer_id    TEXT NOT NULL,
	total_amount   TEXT NOT NULL,
	payment_mode   TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL
)`,
}

// Open connects to PostgreSQL (lib/pq) or SQLite (modernc.org/sqlite).
func Open(driver, dsn string) (*sql.DB, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// PaymentRepository stores payments in a single table; status changes are
// conditional row updates so concurrent writers on one row never lose an update.
type PaymentRepository struct {
	db     *sql.DB
	driver string
}

func NewPaymentRepository(db *sql.DB, driver string) (*PaymentRepository, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	return &PaymentRepository{db: db, driver: driver}, nil
}

// Migrate creates the payments table when missing.
func (r *PaymentRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemas[r.driver]); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.TransactionID == "" {
		return fmt.Errorf("payment repository: transaction id is required")
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO payments
	(transaction_id, order_id, customer_id, total_amount, payment_mode, payment_status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		p.TransactionID, p.OrderID, p.CustomerID, p.TotalAmount,
		string(p.Mode), string(p.Status), p.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("sqlstore: insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, transactionID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT
	transaction_id, order_id, customer_id, total_amount, payment_mode, payment_status, created_at
	FROM payments WHERE transaction_id = $1`), transactionID)

	var (
		p         domain.Payment
		amount    decimal.Decimal
		mode      string
		status    string
		createdAt time.Time
	)
	if err := row.Scan(&p.TransactionID, &p.OrderID, &p.CustomerID, &amount, &mode, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: select payment: %w", err)
	}
	p.TotalAmount = amount
	p.Mode = domain.Mode(mode)
	p.Status = domain.Status(status)
	p.CreatedAt = createdAt.UTC()
	return &p, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, transactionID string, from, to domain.Status) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE payments SET payment_status = $1
	WHERE transaction_id = $2 AND payment_status = $3`), string(to), transactionID, string(from))
	if err != nil {
		return fmt.Errorf("sqlstore: update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update payment status: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM payments WHERE transaction_id = $1`), transactionID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return fmt.Errorf("sqlstore: check payment: %w", err)
	default:
		return domain.ErrStaleStatus
	}
}

func (r *PaymentRepository) rebind(query string) string {
	if r.driver == DriverSQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
