package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const (
	upsertReadStateSQL = `
		INSERT INTO ticket_read_state (ticket_id, unread, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (ticket_id) DO UPDATE
		SET unread = EXCLUDED.unread, updated_at = NOW()`

	listUnreadSQL = `
		SELECT ticket_id FROM ticket_read_state
		WHERE unread
		ORDER BY updated_at DESC`

	rememberMessageSQL = `
		INSERT INTO seen_messages (message_id, ticket_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING`

	recentMessagesSQL = `
		SELECT message_id FROM seen_messages
		ORDER BY seq DESC
		LIMIT $1`

	pruneMessagesSQL = `
		DELETE FROM seen_messages
		WHERE seq <= (
			SELECT seq FROM seen_messages ORDER BY seq DESC OFFSET $1 LIMIT 1
		)`

	pruneReadStateSQL = `
		DELETE FROM ticket_read_state WHERE NOT unread`
)

// ReadStateRepository persists unread markers and delivered message ids.
type ReadStateRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

var _ ports.ReadStateStore = (*ReadStateRepository)(nil)

func NewReadStateRepository(pool *pgxpool.Pool) *ReadStateRepository {
	return &ReadStateRepository{
		pool: pool,
		tm:   NewTransactionManager(pool),
	}
}

func (r *ReadStateRepository) SetUnread(ctx context.Context, ticketID string, unread bool) error {
	if _, err := GetDBTX(ctx, r.pool).Exec(ctx, upsertReadStateSQL, ticketID, unread); err != nil {
		return fmt.Errorf("set unread for %s: %w", ticketID, err)
	}
	return nil
}

func (r *ReadStateRepository) ListUnread(ctx context.Context) ([]string, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, listUnreadSQL)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	return ids, nil
}

// RememberMessage returns false when the id was already recorded.
func (r *ReadStateRepository) RememberMessage(ctx context.Context, messageID, ticketID string) (bool, error) {
	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, rememberMessageSQL, messageID, textOrNull(ticketID))
	if err != nil {
		return false, fmt.Errorf("remember message %s: %w", messageID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecentMessageIDs returns up to limit ids, newest first.
func (r *ReadStateRepository) RecentMessageIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, recentMessagesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return ids, nil
}

// Prune keeps the newest keep message ids and drops read markers that no
// longer carry information.
func (r *ReadStateRepository) Prune(ctx context.Context, keep int) (int64, error) {
	var removed int64
	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, pruneMessagesSQL, keep)
		if err != nil {
			return fmt.Errorf("prune messages: %w", err)
		}
		removed = tag.RowsAffected()

		tag, err = tx.Exec(ctx, pruneReadStateSQL)
		if err != nil {
			return fmt.Errorf("prune read state: %w", err)
		}
		removed += tag.RowsAffected()
		return nil
	})
	return removed, err
}
