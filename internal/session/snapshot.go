package session

import (
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

// Meta is collaborator-facing data about a session that the engine carries
// but never interprets.
type Meta struct {
	SessionID      string
	ChannelID      string
	Version        int64
	UnresolvedPool bool
}

// Snapshot is the read-only view handed to collaborators.
type Snapshot struct {
	SessionID      string              `json:"session_id"`
	ChannelID      string              `json:"channel_id,omitempty"`
	Version        int64               `json:"version"`
	Closed         bool                `json:"closed"`
	UnresolvedPool bool                `json:"unresolved_pool"`
	PoolSize       int64               `json:"pool_size"`
	Outstanding    int64               `json:"outstanding"`
	Participants   []ParticipantView   `json:"participants"`
	Transfers      []TransferView      `json:"transfers"`
	Waived         []transfer.Transfer `json:"-"`
}

type ParticipantView struct {
	UserID      string        `json:"user_id"`
	Name        string        `json:"name"`
	StakeAmount int64         `json:"stake_amount"`
	Outcome     stake.Outcome `json:"outcome"`
	Payout      *int64        `json:"payout"`
	VenmoHandle string        `json:"venmo_handle,omitempty"`
}

type TransferView struct {
	ID         string          `json:"id"`
	FromUserID string          `json:"from_user_id"`
	ToUserID   string          `json:"to_user_id"`
	Amount     int64           `json:"amount"`
	Status     transfer.Status `json:"status"`
}

// Aggregate composes a session's ledgers into a snapshot. transfers is nil
// until the session has been settled. Inputs are only read; every slice in
// the result is freshly allocated.
func Aggregate(meta Meta, ledger *stake.Ledger, transfers *transfer.Ledger) Snapshot {
	snap := Snapshot{
		SessionID:      meta.SessionID,
		ChannelID:      meta.ChannelID,
		Version:        meta.Version,
		Closed:         ledger.Closed(),
		UnresolvedPool: meta.UnresolvedPool,
		PoolSize:       ledger.PoolSize(),
		Participants:   []ParticipantView{},
		Transfers:      []TransferView{},
	}
	for _, p := range ledger.Participants() {
		snap.Participants = append(snap.Participants, ParticipantView{
			UserID:      p.UserID,
			Name:        p.Name,
			StakeAmount: p.StakeAmount,
			Outcome:     p.Outcome,
			Payout:      p.Payout,
			VenmoHandle: p.VenmoHandle,
		})
	}
	if transfers == nil {
		return snap
	}
	snap.Outstanding = transfers.Outstanding()
	for _, t := range transfers.Transfers() {
		if t.Status == transfer.StatusNone {
			snap.Waived = append(snap.Waived, t)
			continue
		}
		snap.Transfers = append(snap.Transfers, TransferView{
			ID:         t.ID,
			FromUserID: t.FromUserID,
			ToUserID:   t.ToUserID,
			Amount:     t.Amount,
			Status:     t.Status,
		})
	}
	return snap
}

// Participant finds a participant by id.
func (s Snapshot) Participant(userID string) (ParticipantView, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return ParticipantView{}, false
}

// Transfer finds a visible transfer by id.
func (s Snapshot) Transfer(id string) (TransferView, bool) {
	for _, t := range s.Transfers {
		if t.ID == id {
			return t, true
		}
	}
	return TransferView{}, false
}
