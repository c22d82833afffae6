package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/types"
)

// Store is the local order cache on the terminal's own disk. It keeps a copy
// of every order keyed by a locally assigned id, together with the synced and
// dirty flags the sync cycle works from.
type Store struct {
	db *sqlx.DB
}

func NewStore(path string) (*Store, error) {

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %w", err)
	}

	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type orderRow struct {
	LocalID     int64     `db:"local_id"`
	ServerID    string    `db:"server_id"`
	OrderNumber string    `db:"order_number"`
	Status      string    `db:"status"`
	Items       string    `db:"items"`
	Total       float64   `db:"total"`
	CreatedAt   time.Time `db:"created_at"`
	Synced      bool      `db:"synced"`
	Dirty       bool      `db:"dirty"`
	RetryCount  int       `db:"retry_count"`
}

func toRow(o types.Order) (orderRow, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return orderRow{}, fmt.Errorf("failed to encode items %w", err)
	}
	return orderRow{
		LocalID:     o.LocalID,
		ServerID:    o.ServerID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		Items:       string(items),
		Total:       o.Total,
		CreatedAt:   o.Timestamp,
		Synced:      o.Synced,
		Dirty:       o.Dirty,
		RetryCount:  o.RetryCount,
	}, nil
}

func (r orderRow) toOrder() (types.Order, error) {
	var items []types.OrderItem
	if err := json.Unmarshal([]byte(r.Items), &items); err != nil {
		return types.Order{}, fmt.Errorf("failed to decode items %w", err)
	}
	return types.Order{
		LocalID:     r.LocalID,
		ServerID:    r.ServerID,
		OrderNumber: r.OrderNumber,
		Status:      types.Status(r.Status),
		Items:       items,
		Total:       r.Total,
		Timestamp:   r.CreatedAt,
		Synced:      r.Synced,
		Dirty:       r.Dirty,
		RetryCount:  r.RetryCount,
	}, nil
}

const orderColumns = `local_id, server_id, order_number, status, items, total, created_at, synced, dirty, retry_count`

func (s *Store) selectOrders(ctx context.Context, query string, args ...any) ([]types.Order, error) {

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed collecting rows %w", err)
	}

	orders := make([]types.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// GetAll returns every cached order, newest first.
func (s *Store) GetAll(ctx context.Context) ([]types.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC, local_id DESC`
	return s.selectOrders(ctx, query)
}

func (s *Store) Get(ctx context.Context, localID int64) (*types.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE local_id = ?`
	return s.getOne(ctx, query, &OrderNotFoundError{LocalID: localID}, localID)
}

func (s *Store) GetByServerID(ctx context.Context, serverID string) (*types.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE server_id = ?
		LIMIT 1`
	return s.getOne(ctx, query, &OrderNotFoundError{ServerID: serverID}, serverID)
}

func (s *Store) GetByOrderNumber(ctx context.Context, number string) (*types.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE order_number = ?
		LIMIT 1`
	return s.getOne(ctx, query, &OrderNotFoundError{OrderNumber: number}, number)
}

func (s *Store) getOne(ctx context.Context, query string, notFound *OrderNotFoundError, args ...any) (*types.Order, error) {

	var row orderRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed collecting row %w", err)
	}
	o, err := row.toOrder()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetUnsynced returns orders not yet acknowledged by the server. Records
// whose push has already failed retryLimit times are quarantined and left
// out; retryLimit <= 0 disables the cap.
func (s *Store) GetUnsynced(ctx context.Context, retryLimit int) ([]types.Order, error) {
	if retryLimit <= 0 {
		query := `
			SELECT ` + orderColumns + `
			FROM orders
			WHERE synced = 0
			ORDER BY created_at DESC, local_id DESC`
		return s.selectOrders(ctx, query)
	}
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE synced = 0 AND retry_count < ?
		ORDER BY created_at DESC, local_id DESC`
	return s.selectOrders(ctx, query, retryLimit)
}

// GetDirty returns orders carrying a local mutation not yet pushed.
func (s *Store) GetDirty(ctx context.Context) ([]types.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE dirty = 1
		ORDER BY created_at DESC, local_id DESC`
	return s.selectOrders(ctx, query)
}

// Put inserts or replaces an order. The local key is preserved on update;
// an order without a local key gets one assigned and written back.
func (s *Store) Put(ctx context.Context, o *types.Order) error {

	row, err := toRow(*o)
	if err != nil {
		return err
	}

	if row.LocalID == 0 {
		query := `
			INSERT INTO orders (server_id, order_number, status, items, total, created_at, synced, dirty, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, query,
			row.ServerID, row.OrderNumber, row.Status, row.Items, row.Total,
			row.CreatedAt, row.Synced, row.Dirty, row.RetryCount)
		if err != nil {
			return fmt.Errorf("failed to insert order %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted id %w", err)
		}
		o.LocalID = id
		return nil
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			server_id = excluded.server_id,
			order_number = excluded.order_number,
			status = excluded.status,
			items = excluded.items,
			total = excluded.total,
			created_at = excluded.created_at,
			synced = excluded.synced,
			dirty = excluded.dirty,
			retry_count = excluded.retry_count`
	_, err = s.db.ExecContext(ctx, query,
		row.LocalID, row.ServerID, row.OrderNumber, row.Status, row.Items,
		row.Total, row.CreatedAt, row.Synced, row.Dirty, row.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to upsert order %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, localID int64) error {

	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete order %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w", &OrderNotFoundError{LocalID: localID})
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("failed to clear orders %w", err)
	}
	return nil
}

// IncrementRetry bumps the push failure counter for a record.
func (s *Store) IncrementRetry(ctx context.Context, localID int64) error {
	query := `
		UPDATE orders
		SET retry_count = retry_count + 1
		WHERE local_id = ?`
	if _, err := s.db.ExecContext(ctx, query, localID); err != nil {
		return fmt.Errorf("failed to increment retry count %w", err)
	}
	return nil
}

// ReplaceAll swaps the whole cache for the given set in one transaction, so
// a concurrent reader never observes a partially replaced set. Orders that
// already carry a local key keep it; the rest get fresh keys.
func (s *Store) ReplaceAll(ctx context.Context, orders []types.Order) error {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("failed to clear orders %w", err)
	}

	for i := range orders {
		row, err := toRow(orders[i])
		if err != nil {
			return err
		}
		if row.LocalID == 0 {
			query := `
				INSERT INTO orders (server_id, order_number, status, items, total, created_at, synced, dirty, retry_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
			res, err := tx.ExecContext(ctx, query,
				row.ServerID, row.OrderNumber, row.Status, row.Items, row.Total,
				row.CreatedAt, row.Synced, row.Dirty, row.RetryCount)
			if err != nil {
				return fmt.Errorf("failed to insert order %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read inserted id %w", err)
			}
			orders[i].LocalID = id
			continue
		}
		query := `
			INSERT INTO orders (` + orderColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, query,
			row.LocalID, row.ServerID, row.OrderNumber, row.Status, row.Items,
			row.Total, row.CreatedAt, row.Synced, row.Dirty, row.RetryCount)
		if err != nil {
			return fmt.Errorf("failed to insert order %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %w", err)
	}
	return nil
}
