// Package sqlite persists order statuses and delegation grants in SQLite so
// an engine can be restored after a restart.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/kaifufi/p2p-swap-go/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists engine state in SQLite. It implements swap.Persister.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite store and applies embedded migrations
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Apply writes a committed changeset in one transaction
func (s *Store) Apply(ctx context.Context, cs swap.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updatedAt := s.now().UTC().UnixMilli()

	for _, c := range cs.Statuses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_status (maker, order_id, status, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (maker, order_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
			c.Maker.Hex(), c.ID.String(), c.Status.String(), updatedAt,
		); err != nil {
			return fmt.Errorf("save order status: %w", err)
		}
	}

	for _, g := range cs.Grants {
		if g.Expiry > math.MaxInt64 {
			return fmt.Errorf("authorization expiry %d out of range", g.Expiry)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO authorizations (approver, delegate, expiry, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (approver, delegate) DO UPDATE SET expiry = excluded.expiry, updated_at = excluded.updated_at`,
			g.Approver.Hex(), g.Delegate.Hex(), int64(g.Expiry), updatedAt,
		); err != nil {
			return fmt.Errorf("save authorization: %w", err)
		}
	}

	for _, k := range cs.Revoked {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM authorizations WHERE approver = ? AND delegate = ?`,
			k.Approver.Hex(), k.Delegate.Hex(),
		); err != nil {
			return fmt.Errorf("delete authorization: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit changeset: %w", err)
	}
	return nil
}

// Load reads the persisted state for swap.Engine.Restore
func (s *Store) Load(ctx context.Context) (swap.Snapshot, error) {
	var snap swap.Snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT maker, order_id, status FROM order_status ORDER BY updated_at, maker, order_id`)
	if err != nil {
		return snap, fmt.Errorf("query order status: %w", err)
	}
	for rows.Next() {
		var maker, id, status string
		if err := rows.Scan(&maker, &id, &status); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan order status: %w", err)
		}
		orderID, ok := new(big.Int).SetString(id, 10)
		if !ok {
			rows.Close()
			return snap, fmt.Errorf("invalid order id %q", id)
		}
		st, err := swap.ParseStatus(status)
		if err != nil {
			rows.Close()
			return snap, err
		}
		snap.Statuses = append(snap.Statuses, swap.StatusChange{
			Maker:  common.HexToAddress(maker),
			ID:     orderID,
			Status: st,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, fmt.Errorf("iterate order status: %w", err)
	}
	rows.Close()

	grants, err := s.sqlDB.QueryContext(ctx, `SELECT approver, delegate, expiry FROM authorizations ORDER BY approver, delegate`)
	if err != nil {
		return snap, fmt.Errorf("query authorizations: %w", err)
	}
	defer grants.Close()
	for grants.Next() {
		var approver, delegate string
		var expiry int64
		if err := grants.Scan(&approver, &delegate, &expiry); err != nil {
			return snap, fmt.Errorf("scan authorization: %w", err)
		}
		snap.Grants = append(snap.Grants, swap.Authorization{
			Approver: common.HexToAddress(approver),
			Delegate: common.HexToAddress(delegate),
			Expiry:   uint64(expiry),
		})
	}
	if err := grants.Err(); err != nil {
		return snap, fmt.Errorf("iterate authorizations: %w", err)
	}
	return snap, nil
}
