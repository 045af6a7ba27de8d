package agent

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// PostgresStore persists agents in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed agent store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const agentColumns = `id, name, description, payout_address, status,
	score, bets_won, bets_lost, disputes_won, disputes_lost,
	total_staked, total_won, created_at, updated_at, verified_at, last_active`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row scanner) (*Agent, error) {
	a := &Agent{}
	var description sql.NullString
	var verifiedAt, lastActive sql.NullTime

	err := row.Scan(
		&a.ID, &a.Name, &description, &a.PayoutAddress, &a.Status,
		&a.Score, &a.BetsWon, &a.BetsLost, &a.DisputesWon, &a.DisputesLost,
		&a.TotalStaked, &a.TotalWon, &a.CreatedAt, &a.UpdatedAt, &verifiedAt, &lastActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Description = description.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	if lastActive.Valid {
		a.LastActive = lastActive.Time
	}
	return a, nil
}

func (p *PostgresStore) Create(ctx context.Context, agent *Agent) error {
	agent.PayoutAddress = strings.ToLower(agent.PayoutAddress)
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = time.Now()
	if agent.Status == "" {
		agent.Status = StatusPendingClaim
	}
	if agent.TotalStaked == "" {
		agent.TotalStaked = "0"
	}
	if agent.TotalWon == "" {
		agent.TotalWon = "0"
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, payout_address, status,
			score, bets_won, bets_lost, disputes_won, disputes_lost,
			total_staked, total_won, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, agent.ID, agent.Name, nullString(agent.Description), agent.PayoutAddress, agent.Status,
		agent.Score, agent.BetsWon, agent.BetsLost, agent.DisputesWon, agent.DisputesLost,
		agent.TotalStaked, agent.TotalWon, agent.CreatedAt, agent.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrExists
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Agent, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (p *PostgresStore) GetByAddress(ctx context.Context, payoutAddress string) (*Agent, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE payout_address = $1`,
		strings.ToLower(payoutAddress))
	return scanAgent(row)
}

func (p *PostgresStore) Update(ctx context.Context, agent *Agent) error {
	agent.UpdatedAt = time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE agents SET name = $1, description = $2, status = $3,
			score = $4, bets_won = $5, bets_lost = $6,
			disputes_won = $7, disputes_lost = $8,
			total_staked = $9, total_won = $10,
			updated_at = $11, verified_at = $12, last_active = $13
		WHERE id = $14
	`, agent.Name, nullString(agent.Description), agent.Status,
		agent.Score, agent.BetsWon, agent.BetsLost,
		agent.DisputesWon, agent.DisputesLost,
		agent.TotalStaked, agent.TotalWon,
		agent.UpdatedAt, nullTimePtr(agent.VerifiedAt), nullTime(agent.LastActive), agent.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (p *PostgresStore) List(ctx context.Context, query Query) ([]*Agent, error) {
	if query.Limit == 0 {
		query.Limit = 100
	}

	q := `SELECT ` + agentColumns + ` FROM agents`
	args := []interface{}{}
	if query.Status != "" {
		q += ` WHERE status = $1`
		args = append(args, query.Status)
	}
	q += ` ORDER BY score DESC, created_at ASC`
	args = append(args, query.Limit, query.Offset)
	if query.Status != "" {
		q += ` LIMIT $2 OFFSET $3`
	} else {
		q += ` LIMIT $1 OFFSET $2`
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	agents := []*Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateStats reads, applies fn, and writes back inside one transaction
func (p *PostgresStore) UpdateStats(ctx context.Context, id string, fn func(*Agent)) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAgent(row)
	if err != nil {
		return err
	}

	fn(a)
	a.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx, `
		UPDATE agents SET status = $1, score = $2,
			bets_won = $3, bets_lost = $4, disputes_won = $5, disputes_lost = $6,
			total_staked = $7, total_won = $8, updated_at = $9, verified_at = $10,
			last_active = $11
		WHERE id = $12
	`, a.Status, a.Score, a.BetsWon, a.BetsLost, a.DisputesWon, a.DisputesLost,
		a.TotalStaked, a.TotalWon, a.UpdatedAt, nullTimePtr(a.VerifiedAt),
		nullTime(a.LastActive), a.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
