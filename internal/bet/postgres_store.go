package bet

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/koredeycode/moltbet/internal/dispute"
)

// PostgresStore persists bets, disputes, and events in PostgreSQL.
// Transition methods run in a transaction with a status guard in the
// UPDATE's WHERE clause, so lost races surface as ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed bet store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const betColumns = `id, title, description, terms, category, status, stake,
	proposer_id, counter_id, win_claimer_id, win_claim_evidence, winner_id,
	escrow_tx_hash, resolution_tx_hash, expires_at,
	created_at, updated_at, countered_at, win_claimed_at, resolved_at`

const disputeColumns = `id, bet_id, raised_by_id, reason, evidence,
	counter_reason, counter_evidence, responded_at,
	status, resolved_by_id, resolution_notes, winner_id,
	created_at, resolved_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBet(row scanner) (*Bet, error) {
	b := &Bet{}
	var description, category, counterID, winClaimerID, winClaimEvidence sql.NullString
	var winnerID, escrowTx, resolutionTx sql.NullString
	var counteredAt, winClaimedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.Title, &description, &b.Terms, &category, &b.Status, &b.Stake,
		&b.ProposerID, &counterID, &winClaimerID, &winClaimEvidence, &winnerID,
		&escrowTx, &resolutionTx, &b.ExpiresAt,
		&b.CreatedAt, &b.UpdatedAt, &counteredAt, &winClaimedAt, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	b.Description = description.String
	b.Category = Category(category.String)
	b.CounterID = counterID.String
	b.WinClaimerID = winClaimerID.String
	b.WinClaimEvidence = winClaimEvidence.String
	b.WinnerID = winnerID.String
	b.EscrowTxHash = escrowTx.String
	b.ResolutionTxHash = resolutionTx.String
	if counteredAt.Valid {
		b.CounteredAt = &counteredAt.Time
	}
	if winClaimedAt.Valid {
		b.WinClaimedAt = &winClaimedAt.Time
	}
	if resolvedAt.Valid {
		b.ResolvedAt = &resolvedAt.Time
	}
	return b, nil
}

func scanDispute(row scanner) (*dispute.Dispute, error) {
	d := &dispute.Dispute{}
	var evidence, counterReason, counterEvidence sql.NullString
	var resolvedByID, resolutionNotes, winnerID sql.NullString
	var respondedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.BetID, &d.RaisedByID, &d.Reason, &evidence,
		&counterReason, &counterEvidence, &respondedAt,
		&d.Status, &resolvedByID, &resolutionNotes, &winnerID,
		&d.CreatedAt, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, dispute.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Evidence = evidence.String
	d.CounterReason = counterReason.String
	d.CounterEvidence = counterEvidence.String
	d.ResolvedByID = resolvedByID.String
	d.ResolutionNotes = resolutionNotes.String
	d.WinnerID = winnerID.String
	if respondedAt.Valid {
		d.RespondedAt = &respondedAt.Time
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return d, nil
}

func (p *PostgresStore) CreateBet(ctx context.Context, b *Bet, ev *BetEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id, title, description, terms, category, status, stake,
			proposer_id, escrow_tx_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.Title, nullString(b.Description), b.Terms, nullString(string(b.Category)),
		b.Status, b.Stake, b.ProposerID, nullString(b.EscrowTxHash),
		b.ExpiresAt, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return err
	}

	if ev != nil {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) GetBet(ctx context.Context, id string) (*Bet, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id = $1`, id)
	return scanBet(row)
}

func (p *PostgresStore) UpdateBet(ctx context.Context, b *Bet, expect Status, events ...*BetEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateBetTx(ctx, tx, b, expect); err != nil {
		return err
	}
	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// updateBetTx writes the full bet row guarded by the expected status.
func updateBetTx(ctx context.Context, tx *sql.Tx, b *Bet, expect Status) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bets SET title = $1, description = $2, terms = $3, category = $4,
			status = $5, counter_id = $6, win_claimer_id = $7,
			win_claim_evidence = $8, winner_id = $9,
			escrow_tx_hash = $10, resolution_tx_hash = $11,
			expires_at = $12, updated_at = $13,
			countered_at = $14, win_claimed_at = $15, resolved_at = $16
		WHERE id = $17 AND status = $18
	`, b.Title, nullString(b.Description), b.Terms, nullString(string(b.Category)),
		b.Status, nullString(b.CounterID), nullString(b.WinClaimerID),
		nullString(b.WinClaimEvidence), nullString(b.WinnerID),
		nullString(b.EscrowTxHash), nullString(b.ResolutionTxHash),
		b.ExpiresAt, b.UpdatedAt,
		nullTimePtr(b.CounteredAt), nullTimePtr(b.WinClaimedAt), nullTimePtr(b.ResolvedAt),
		b.ID, expect)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *BetEvent) error {
	var metadata []byte
	if ev.Metadata != nil {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		metadata = raw
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bet_events (id, bet_id, actor_id, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.BetID, ev.ActorID, ev.Type, metadata, ev.CreatedAt)
	return err
}

func (p *PostgresStore) ListFeed(ctx context.Context, q FeedQuery) ([]*Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE `
	args := []interface{}{}
	n := 1

	if q.Status != "" {
		query += `status = $1`
		args = append(args, q.Status)
		n = 2
	} else {
		query += `status IN ('open', 'countered')`
	}
	if q.Category != "" {
		query += ` AND category = $` + strconv.Itoa(n)
		args = append(args, q.Category)
		n++
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	args = append(args, q.Limit, q.Offset)

	return p.queryBets(ctx, query, args...)
}

func (p *PostgresStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*Bet, error) {
	return p.queryBets(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE proposer_id = $1 OR counter_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, agentID, limit)
}

func (p *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Bet, error) {
	return p.queryBets(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE status = 'open' AND expires_at < $1
		ORDER BY expires_at ASC LIMIT $2
	`, before, limit)
}

func (p *PostgresStore) ListClaimTimeouts(ctx context.Context, before time.Time, limit int) ([]*Bet, error) {
	return p.queryBets(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE status = 'win_claimed' AND win_claimed_at < $1
		ORDER BY win_claimed_at ASC LIMIT $2
	`, before, limit)
}

func (p *PostgresStore) queryBets(ctx context.Context, query string, args ...interface{}) ([]*Bet, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	bets := []*Bet{}
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (p *PostgresStore) ListEvents(ctx context.Context, betID string) ([]*BetEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, actor_id, type, metadata, created_at
		FROM bet_events WHERE bet_id = $1 ORDER BY created_at ASC
	`, betID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := []*BetEvent{}
	for rows.Next() {
		ev := &BetEvent{}
		var metadata []byte
		if err := rows.Scan(&ev.ID, &ev.BetID, &ev.ActorID, &ev.Type, &metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (p *PostgresStore) CreateDispute(ctx context.Context, d *dispute.Dispute, b *Bet, expect Status, ev *BetEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateBetTx(ctx, tx, b, expect); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO disputes (id, bet_id, raised_by_id, reason, evidence, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.BetID, d.RaisedByID, d.Reason, nullString(d.Evidence), d.Status, d.CreatedAt)
	if err != nil {
		return err
	}

	if ev != nil {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) GetDispute(ctx context.Context, id string) (*dispute.Dispute, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

func (p *PostgresStore) UpdateDispute(ctx context.Context, d *dispute.Dispute, ev *BetEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateDisputeTx(ctx, tx, d); err != nil {
		return err
	}
	if ev != nil {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func updateDisputeTx(ctx context.Context, tx *sql.Tx, d *dispute.Dispute) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE disputes SET counter_reason = $1, counter_evidence = $2,
			responded_at = $3, status = $4, resolved_by_id = $5,
			resolution_notes = $6, winner_id = $7, resolved_at = $8
		WHERE id = $9
	`, nullString(d.CounterReason), nullString(d.CounterEvidence),
		nullTimePtr(d.RespondedAt), d.Status, nullString(d.ResolvedByID),
		nullString(d.ResolutionNotes), nullString(d.WinnerID),
		nullTimePtr(d.ResolvedAt), d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return dispute.ErrNotFound
	}
	return err
}

func (p *PostgresStore) ResolveDispute(ctx context.Context, d *dispute.Dispute, b *Bet, expect Status, events ...*BetEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateBetTx(ctx, tx, b, expect); err != nil {
		return err
	}
	if err := updateDisputeTx(ctx, tx, d); err != nil {
		return err
	}
	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) ListDisputes(ctx context.Context, status dispute.Status, limit int) ([]*dispute.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	disputes := []*dispute.Dispute{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

