package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/susu3304/stakepool/internal/settlement"
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrNotSettled      = errors.New("session has not been settled")
)

// entry is one independently locked session.
type entry struct {
	mu        sync.Mutex
	meta      Meta
	ledger    *stake.Ledger
	transfers *transfer.Ledger
}

func (e *entry) snapshot() Snapshot {
	return Aggregate(e.meta, e.ledger, e.transfers)
}

// Manager keeps every live session keyed by id. Mutations of one session are
// serialized by that session's lock; different sessions never contend beyond
// the map lookup.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	policy   settlement.Policy
}

func NewManager(policy settlement.Policy) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		policy:   policy,
	}
}

func (m *Manager) get(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e, nil
}

// Create opens a new session. An empty sessionID gets a generated one.
func (m *Manager) Create(sessionID, channelID string, entries []stake.Entry) (Snapshot, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ledger, err := stake.New(sessionID, entries)
	if err != nil {
		return Snapshot{}, err
	}
	e := &entry{
		meta:   Meta{SessionID: sessionID, ChannelID: channelID, Version: 1},
		ledger: ledger,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	m.sessions[sessionID] = e
	return e.snapshot(), nil
}

// MarkOutcome records a participant outcome while the session is open.
func (m *Manager) MarkOutcome(sessionID, userID string, outcome stake.Outcome) (bool, error) {
	e, err := m.get(sessionID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := e.ledger.MarkOutcome(userID, outcome)
	if err != nil {
		return false, err
	}
	if changed {
		e.meta.Version++
	}
	return changed, nil
}

// Close ends the session, plans settlement and materializes its transfers.
// Either all of it commits or none of it does.
func (m *Manager) Close(sessionID string) (Snapshot, error) {
	e, err := m.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ledger := e.ledger.Clone()
	if err := ledger.Close(); err != nil {
		return Snapshot{}, err
	}
	plan, err := settlement.Plan(ledger, m.policy)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ledger.AssignPayouts(plan.Payouts); err != nil {
		return Snapshot{}, err
	}
	transfers, err := transfer.NewLedger(plan.Transfers)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session %s: %w", sessionID, err)
	}

	e.ledger = ledger
	e.transfers = transfers
	e.meta.UnresolvedPool = plan.UnresolvedPool
	e.meta.Version++
	return e.snapshot(), nil
}

// Apply delivers a payment lifecycle event to one transfer.
func (m *Manager) Apply(sessionID, transferID string, event transfer.Event) (transfer.Transition, Snapshot, error) {
	e, err := m.get(sessionID)
	if err != nil {
		return transfer.Transition{}, Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transfers == nil {
		return transfer.Transition{}, Snapshot{}, fmt.Errorf("%w: %s", ErrNotSettled, sessionID)
	}
	tr, err := e.transfers.Apply(transferID, event)
	if err != nil {
		return transfer.Transition{}, Snapshot{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if tr.Changed {
		e.meta.Version++
	}
	return tr, e.snapshot(), nil
}

func (m *Manager) Snapshot(sessionID string) (Snapshot, error) {
	e, err := m.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// PaymentLink builds the payment-app URI for a transfer, addressed to its
// recipient's handle.
func (m *Manager) PaymentLink(sessionID, transferID, note string) (string, error) {
	snap, err := m.Snapshot(sessionID)
	if err != nil {
		return "", err
	}
	if !snap.Closed {
		return "", fmt.Errorf("%w: %s", ErrNotSettled, sessionID)
	}
	t, ok := snap.Transfer(transferID)
	if !ok {
		return "", fmt.Errorf("session %s: %w: %s", sessionID, transfer.ErrUnknownTransfer, transferID)
	}
	recipient, _ := snap.Participant(t.ToUserID)
	return transfer.PaymentURI(t.Amount, recipient.VenmoHandle, note)
}

// Discard forgets a session.
func (m *Manager) Discard(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(m.sessions, sessionID)
	return nil
}

// List returns the ids of every live session in ascending order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Restore loads a persisted snapshot back into the manager.
func (m *Manager) Restore(snap Snapshot) error {
	participants := make([]stake.Participant, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, stake.Participant{
			UserID:      p.UserID,
			Name:        p.Name,
			StakeAmount: p.StakeAmount,
			Outcome:     p.Outcome,
			Payout:      p.Payout,
			VenmoHandle: p.VenmoHandle,
		})
	}
	ledger, err := stake.Restore(snap.SessionID, participants, snap.Closed)
	if err != nil {
		return fmt.Errorf("restore session %s: %w", snap.SessionID, err)
	}

	e := &entry{
		meta: Meta{
			SessionID:      snap.SessionID,
			ChannelID:      snap.ChannelID,
			Version:        snap.Version,
			UnresolvedPool: snap.UnresolvedPool,
		},
		ledger: ledger,
	}
	if snap.Closed {
		all := append([]transfer.Transfer(nil), snap.Waived...)
		for _, t := range snap.Transfers {
			all = append(all, transfer.Transfer{ID: t.ID, FromUserID: t.FromUserID, ToUserID: t.ToUserID, Amount: t.Amount, Status: t.Status})
		}
		if e.transfers, err = transfer.Restore(all); err != nil {
			return fmt.Errorf("restore session %s: %w", snap.SessionID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[snap.SessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, snap.SessionID)
	}
	m.sessions[snap.SessionID] = e
	return nil
}
