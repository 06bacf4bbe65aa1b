package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"mailmirror/core/domain"
)

type SearchRepository struct {
	db *DB
}

func NewSearchRepository(db *DB) *SearchRepository {
	return &SearchRepository{db: db}
}

const searchSelectColumns = `
	m.id, m.account_id, m.uid, m.folder, m.provider_message_id, m.thread_key,
	m.from_address, m.to_addresses, m.subject, m.body_preview,
	m.is_read, m.received_at, m.fetched_at, m.deleted_at`

// SearchQuery ranks the fts column with a natural-language tsquery,
// ordered by rank then recency, scoped to the caller's own accounts.
// Grounded on worker_email_adapter.go's Search (ts_rank + COUNT(*) OVER()),
// reworked from a single-table search onto the account ownership join.
func (r *SearchRepository) SearchQuery(ctx context.Context, userID, q string, page, limit int) ([]*domain.Message, int, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, 0, nil
	}
	limit = clampLimit(limit)
	offset := offsetFor(page, limit)

	query := `
		SELECT ` + searchSelectColumns + `,
			ts_rank(f.tsv, plainto_tsquery('english', $2)) as search_score,
			COUNT(*) OVER() as total_count
		FROM messages m
		JOIN mail_accounts a ON a.id = m.account_id
		JOIN email_fts f ON f.message_id = m.id
		WHERE a.user_id = $1 AND m.deleted_at IS NULL
			AND f.tsv @@ plainto_tsquery('english', $2)
		ORDER BY search_score DESC, m.received_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryxContext(ctx, query, userID, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	return scanRankedMessages(rows)
}

// SearchSender is a substring, case-insensitive match against the
// sender address, independent of the fts index.
func (r *SearchRepository) SearchSender(ctx context.Context, userID, sender string, page, limit int) ([]*domain.Message, int, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return nil, 0, nil
	}
	limit = clampLimit(limit)
	offset := offsetFor(page, limit)

	query := `
		SELECT ` + searchSelectColumns + `,
			0::real as search_score,
			COUNT(*) OVER() as total_count
		FROM messages m
		JOIN mail_accounts a ON a.id = m.account_id
		WHERE a.user_id = $1 AND m.deleted_at IS NULL AND m.from_address ILIKE $2
		ORDER BY m.received_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryxContext(ctx, query, userID, "%"+sender+"%", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	return scanRankedMessages(rows)
}

type rankedMessageRow struct {
	messageRow
	SearchScore float64 `db:"search_score"`
	TotalCount  int     `db:"total_count"`
}

func scanRankedMessages(rows *sqlx.Rows) ([]*domain.Message, int, error) {
	var messages []*domain.Message
	var total int
	for rows.Next() {
		var row rankedMessageRow
		if err := rows.StructScan(&row); err != nil {
			return nil, 0, err
		}
		m, err := row.messageRow.toDomain()
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
		total = row.TotalCount
	}
	return messages, total, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func offsetFor(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
