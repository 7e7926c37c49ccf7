package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqliteLockManager implements advisory locks as rows in the locks table.
// A lock older than its TTL is considered abandoned and may be taken over,
// so a crashed holder cannot wedge scheduling forever.
type sqliteLockManager struct {
	db *sql.DB
}

func (m *sqliteLockManager) Acquire(ctx context.Context, name, holder string, ttl time.Duration) error {
	now := time.Now().UTC()
	stale := now.Add(-ttl)

	// Insert wins if no row exists; otherwise take over only a stale row or
	// refresh our own. A single conditional upsert keeps the check and the
	// write atomic under SQLite's writer lock.
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO locks (name, holder, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at
		WHERE locks.holder = excluded.holder OR locks.acquired_at < ?
	`, name, holder, now, stale)
	if err != nil {
		return fmt.Errorf("acquire lock %q: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire lock %q rows affected: %w", name, err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

func (m *sqliteLockManager) Release(ctx context.Context, name, holder string) error {
	_, err := m.db.ExecContext(ctx, `
		DELETE FROM locks WHERE name = ? AND holder = ?
	`, name, holder)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	return nil
}
