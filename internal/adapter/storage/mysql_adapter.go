package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/port"
)

const (
	errDuplicateEntry   = 1062
	errLockWaitTimeout  = 1205
	errDeadlockDetected = 1213
)

const (
	defaultTxRetries     = 5
	retryInitialInterval = 20 * time.Millisecond
	retryMaxElapsed      = 2 * time.Second
)

//go:embed schema.sql
var schemaSQL string

const (
	slotColumns = `id, code, capacity, current_item_count, created_at, updated_at`
	itemColumns = `id, slot_id, name, price, quantity, created_at, updated_at`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLAdapter implements port.Store on InnoDB. Transactions aborted by a deadlock
// or lock wait timeout are retried with exponential backoff.
type MySQLAdapter struct {
	*mysqlRepository
	db         *sql.DB
	maxRetries uint64
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{
		mysqlRepository: &mysqlRepository{q: db},
		db:              db,
		maxRetries:      defaultTxRetries,
	}
}

// EnsureSchema creates the slots and items tables when they are missing.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) RunInTx(ctx context.Context, fn port.TxFunc) error {
	return m.retry(ctx, func() error { return m.runTx(ctx, nil, fn) })
}

func (m *MySQLAdapter) RunReadOnly(ctx context.Context, fn port.TxFunc) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return m.retry(ctx, func() error { return m.runTx(ctx, opts, fn) })
}

func (m *MySQLAdapter) runTx(ctx context.Context, opts *sql.TxOptions, fn port.TxFunc) error {
	tx, err := m.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlRepository{q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxElapsedTime = retryMaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil || isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, m.maxRetries), ctx))
}

func mysqlErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isRetryable(err error) bool {
	n := mysqlErrorNumber(err)
	return n == errDeadlockDetected || n == errLockWaitTimeout
}

type mysqlRepository struct {
	q    querier
	inTx bool
}

func (r *mysqlRepository) CountSlots(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM slots`
	if r.inTx {
		// next-key locks on the whole index keep concurrent creates out until commit
		query += ` FOR UPDATE`
	}
	var n int
	if err := r.q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count slots: %w", err)
	}
	return n, nil
}

func (r *mysqlRepository) CreateSlot(ctx context.Context, slot domain.Slot) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.Code, slot.Capacity, slot.CurrentItemCount, slot.CreatedAt, slot.UpdatedAt,
	)
	if mysqlErrorNumber(err) == errDuplicateEntry {
		return fmt.Errorf("%w: %v", port.ErrUniqueViolation, err)
	}
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *mysqlRepository) GetSlot(ctx context.Context, id string) (*domain.Slot, error) {
	return r.scanSlot(r.q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
}

func (r *mysqlRepository) GetSlotByCode(ctx context.Context, code string) (*domain.Slot, error) {
	return r.scanSlot(r.q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE code = ?`, code))
}

func (r *mysqlRepository) GetSlotForUpdate(ctx context.Context, id string) (*domain.Slot, error) {
	return r.scanSlot(r.q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ? FOR UPDATE`, id))
}

func (r *mysqlRepository) scanSlot(row *sql.Row) (*domain.Slot, error) {
	var s domain.Slot
	err := row.Scan(&s.ID, &s.Code, &s.Capacity, &s.CurrentItemCount, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query slot: %w", err)
	}
	return &s, nil
}

func (r *mysqlRepository) ListSlots(ctx context.Context) ([]domain.Slot, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+slotColumns+` FROM slots ORDER BY created_at, code`)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		var s domain.Slot
		if err := rows.Scan(&s.ID, &s.Code, &s.Capacity, &s.CurrentItemCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *mysqlRepository) UpdateSlotItemCount(ctx context.Context, id string, count int, updatedAt time.Time) error {
	return r.execOne(ctx, "slot", id,
		`UPDATE slots SET current_item_count = ?, updated_at = ? WHERE id = ?`, count, updatedAt, id)
}

func (r *mysqlRepository) DeleteSlot(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (r *mysqlRepository) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SlotID, item.Name, item.Price, item.Quantity, item.CreatedAt, item.UpdatedAt,
	)
	if mysqlErrorNumber(err) == errDuplicateEntry {
		return fmt.Errorf("%w: %v", port.ErrUniqueViolation, err)
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *mysqlRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return r.scanItem(r.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
}

func (r *mysqlRepository) GetItemInSlot(ctx context.Context, slotID, itemID string) (*domain.Item, error) {
	return r.scanItem(r.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND slot_id = ?`, itemID, slotID))
}

func (r *mysqlRepository) scanItem(row *sql.Row) (*domain.Item, error) {
	var it domain.Item
	err := row.Scan(&it.ID, &it.SlotID, &it.Name, &it.Price, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &it, nil
}

func (r *mysqlRepository) ListItems(ctx context.Context) ([]domain.Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at, id`)
}

func (r *mysqlRepository) ListItemsBySlot(ctx context.Context, slotID string) ([]domain.Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE slot_id = ? ORDER BY created_at, id`, slotID)
}

func (r *mysqlRepository) ListItemsInSlotByIDs(ctx context.Context, slotID string, ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, slotID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items
		WHERE slot_id = ? AND id IN (`+placeholders+`) ORDER BY created_at, id`, args...)
}

func (r *mysqlRepository) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.SlotID, &it.Name, &it.Price, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *mysqlRepository) UpdateItemQuantity(ctx context.Context, id string, quantity int, updatedAt time.Time) error {
	return r.execOne(ctx, "item", id,
		`UPDATE items SET quantity = ?, updated_at = ? WHERE id = ?`, quantity, updatedAt, id)
}

func (r *mysqlRepository) UpdateItemPrice(ctx context.Context, id string, price int64, updatedAt time.Time) error {
	return r.execOne(ctx, "item", id,
		`UPDATE items SET price = ?, updated_at = ? WHERE id = ?`, price, updatedAt, id)
}

func (r *mysqlRepository) DeleteItem(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (r *mysqlRepository) DeleteItemsBySlot(ctx context.Context, slotID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM items WHERE slot_id = ?`, slotID); err != nil {
		return fmt.Errorf("delete slot items: %w", err)
	}
	return nil
}

// execOne runs an UPDATE that must hit exactly one row. MySQL reports rows changed,
// not rows matched, so an update that writes identical values falls back to an
// existence check.
func (r *mysqlRepository) execOne(ctx context.Context, table, id, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = r.q.QueryRowContext(ctx, `SELECT 1 FROM `+table+`s WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s not found", table, id)
	}
	if err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	return nil
}
