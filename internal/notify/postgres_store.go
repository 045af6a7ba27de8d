package notify

import (
	"context"
	"database/sql"
)

// PostgresStore persists notifications in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed notification store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Create(ctx context.Context, n *Notification) error {
	var betID sql.NullString
	if n.BetID != "" {
		betID = sql.NullString{String: n.BetID, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, agent_id, type, bet_id, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.AgentID, n.Type, betID, n.Message, n.Read, n.CreatedAt)
	return err
}

func (p *PostgresStore) ListByAgent(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*Notification, error) {
	q := `
		SELECT id, agent_id, type, bet_id, message, read, created_at
		FROM notifications WHERE agent_id = $1`
	if unreadOnly {
		q += ` AND read = FALSE`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := p.db.QueryContext(ctx, q, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*Notification
	for rows.Next() {
		n := &Notification{}
		var betID sql.NullString
		if err := rows.Scan(&n.ID, &n.AgentID, &n.Type, &betID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.BetID = betID.String
		results = append(results, n)
	}
	return results, rows.Err()
}

func (p *PostgresStore) MarkRead(ctx context.Context, agentID, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND agent_id = $2
	`, id, agentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (p *PostgresStore) MarkAllRead(ctx context.Context, agentID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE agent_id = $1 AND read = FALSE
	`, agentID)
	return err
}
