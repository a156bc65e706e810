package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

// SaveSession writes a full snapshot. A snapshot older than the stored
// version is dropped, so saves racing each other cannot move state backwards.
func (db *DB) SaveSession(ctx context.Context, snap session.Snapshot) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`INSERT INTO pool_sessions (id, channel_id, version, closed, unresolved_pool, pool_size, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, CASE WHEN $4 THEN CURRENT_TIMESTAMP END)
		 ON CONFLICT (id) DO UPDATE
		 SET version = EXCLUDED.version,
			 closed = EXCLUDED.closed,
			 unresolved_pool = EXCLUDED.unresolved_pool,
			 closed_at = COALESCE(pool_sessions.closed_at, EXCLUDED.closed_at),
			 updated_at = CURRENT_TIMESTAMP
		 WHERE pool_sessions.version < EXCLUDED.version`,
		snap.SessionID, snap.ChannelID, snap.Version, snap.Closed, snap.UnresolvedPool, snap.PoolSize,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// stale snapshot
		return nil
	}

	for _, p := range snap.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pool_participants (session_id, user_id, name, stake_amount, outcome, payout, venmo_handle)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id, user_id) DO UPDATE
			 SET outcome = EXCLUDED.outcome, payout = EXCLUDED.payout`,
			snap.SessionID, p.UserID, p.Name, p.StakeAmount, string(p.Outcome), p.Payout, p.VenmoHandle,
		); err != nil {
			return err
		}
	}

	rows := make([]transfer.Transfer, 0, len(snap.Transfers)+len(snap.Waived))
	for _, t := range snap.Transfers {
		rows = append(rows, transfer.Transfer{ID: t.ID, FromUserID: t.FromUserID, ToUserID: t.ToUserID, Amount: t.Amount, Status: t.Status})
	}
	rows = append(rows, snap.Waived...)
	for _, t := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pool_transfers (session_id, id, from_user_id, to_user_id, amount, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, id) DO UPDATE
			 SET status = EXCLUDED.status,
				 updated_at = CASE WHEN pool_transfers.status <> EXCLUDED.status THEN CURRENT_TIMESTAMP ELSE pool_transfers.updated_at END`,
			snap.SessionID, t.ID, t.FromUserID, t.ToUserID, t.Amount, string(t.Status),
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// LoadSessions returns every stored session.
func (db *DB) LoadSessions(ctx context.Context) ([]session.Snapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, channel_id, version, closed, unresolved_pool, pool_size FROM pool_sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var snaps []session.Snapshot
	for rows.Next() {
		var s session.Snapshot
		if err := rows.Scan(&s.SessionID, &s.ChannelID, &s.Version, &s.Closed, &s.UnresolvedPool, &s.PoolSize); err != nil {
			rows.Close()
			return nil, err
		}
		snaps = append(snaps, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		if err := db.loadParticipants(ctx, &snaps[i]); err != nil {
			return nil, err
		}
		if err := db.loadTransfers(ctx, &snaps[i]); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

func (db *DB) loadParticipants(ctx context.Context, snap *session.Snapshot) error {
	rows, err := db.pool.Query(ctx,
		`SELECT user_id, name, stake_amount, outcome, payout, venmo_handle
		 FROM pool_participants WHERE session_id = $1 ORDER BY user_id`,
		snap.SessionID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	snap.Participants = []session.ParticipantView{}
	for rows.Next() {
		var p session.ParticipantView
		var outcome string
		if err := rows.Scan(&p.UserID, &p.Name, &p.StakeAmount, &outcome, &p.Payout, &p.VenmoHandle); err != nil {
			return err
		}
		p.Outcome = stake.Outcome(outcome)
		snap.Participants = append(snap.Participants, p)
	}
	return rows.Err()
}

func (db *DB) loadTransfers(ctx context.Context, snap *session.Snapshot) error {
	rows, err := db.pool.Query(ctx,
		`SELECT id, from_user_id, to_user_id, amount, status
		 FROM pool_transfers WHERE session_id = $1`,
		snap.SessionID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	snap.Transfers = []session.TransferView{}
	for rows.Next() {
		var t transfer.Transfer
		var status string
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &status); err != nil {
			return err
		}
		t.Status = transfer.Status(status)
		if t.Status == transfer.StatusNone {
			snap.Waived = append(snap.Waived, t)
			continue
		}
		snap.Transfers = append(snap.Transfers, session.TransferView{ID: t.ID, FromUserID: t.FromUserID, ToUserID: t.ToUserID, Amount: t.Amount, Status: t.Status})
		if t.Status.Open() {
			snap.Outstanding += t.Amount
		}
	}
	return rows.Err()
}

// RecordViolation keeps an audit row per reported violation; redelivery of the
// same signal is ignored.
func (db *DB) RecordViolation(ctx context.Context, sessionID, userID string, at time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO pool_violations (session_id, user_id, reported_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		sessionID, userID, at.UTC(),
	)
	return err
}

type OverdueCandidate struct {
	SessionID  string
	TransferID string
	ChannelID  string
	Amount     int64
}

// OverdueCandidates returns pending transfers planned at or before cutoff.
func (db *DB) OverdueCandidates(ctx context.Context, cutoff time.Time) ([]OverdueCandidate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT t.session_id, t.id, s.channel_id, t.amount
		 FROM pool_transfers t
		 JOIN pool_sessions s ON s.id = t.session_id
		 WHERE t.status = $1 AND t.planned_at <= $2
		 ORDER BY t.planned_at, t.session_id, t.id`,
		string(transfer.StatusPending), cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueCandidate
	for rows.Next() {
		var c OverdueCandidate
		if err := rows.Scan(&c.SessionID, &c.TransferID, &c.ChannelID, &c.Amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and everything hanging off it.
func (db *DB) DeleteSession(ctx context.Context, sessionID string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM pool_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
