package stake

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidPool         = errors.New("invalid stake pool")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrAlreadyTerminal     = errors.New("participant outcome already terminal")
	ErrAlreadyClosed       = errors.New("stake ledger already closed")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrLedgerOpen          = errors.New("stake ledger still open")
	ErrPayoutsAssigned     = errors.New("payouts already assigned")
	ErrPayoutsInconsistent = errors.New("payouts do not match participants")
)

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeCompleted, OutcomeFailed:
		return true
	}
	return false
}

// Terminal reports whether the outcome is final.
func (o Outcome) Terminal() bool {
	return o == OutcomeCompleted || o == OutcomeFailed
}

// Entry is the creation input for one participant.
type Entry struct {
	UserID      string
	Name        string
	StakeAmount int64
	VenmoHandle string
}

type Participant struct {
	UserID      string
	Name        string
	StakeAmount int64 // cents
	Outcome     Outcome
	Payout      *int64
	VenmoHandle string
}

// ParticipantError names the session and participant a rejected call was about.
type ParticipantError struct {
	SessionID string
	UserID    string
	Current   Outcome
	Requested Outcome
	Err       error
}

func (e *ParticipantError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("session %s: participant %s: %v (current=%s requested=%s)", e.SessionID, e.UserID, e.Err, e.Current, e.Requested)
	}
	return fmt.Sprintf("session %s: participant %s: %v", e.SessionID, e.UserID, e.Err)
}

func (e *ParticipantError) Unwrap() error { return e.Err }

// Ledger records stakes and outcomes for one session. It is not safe for
// concurrent use; callers serialize access per session.
type Ledger struct {
	sessionID    string
	participants map[string]*Participant
	closed       bool
}

// New validates the stake set and opens a ledger with every outcome pending.
func New(sessionID string, entries []Entry) (*Ledger, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidPool)
	}
	l := &Ledger{
		sessionID:    sessionID,
		participants: make(map[string]*Participant, len(entries)),
	}
	for _, e := range entries {
		if e.UserID == "" {
			return nil, fmt.Errorf("%w: empty user id", ErrInvalidPool)
		}
		if e.StakeAmount <= 0 {
			return nil, fmt.Errorf("%w: stake for %s must be positive, got %d", ErrInvalidPool, e.UserID, e.StakeAmount)
		}
		if _, dup := l.participants[e.UserID]; dup {
			return nil, fmt.Errorf("%w: duplicate user id %s", ErrInvalidPool, e.UserID)
		}
		l.participants[e.UserID] = &Participant{
			UserID:      e.UserID,
			Name:        e.Name,
			StakeAmount: e.StakeAmount,
			Outcome:     OutcomePending,
			VenmoHandle: e.VenmoHandle,
		}
	}
	return l, nil
}

// Restore rebuilds a ledger from persisted participants.
func Restore(sessionID string, participants []Participant, closed bool) (*Ledger, error) {
	entries := make([]Entry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, Entry{UserID: p.UserID, Name: p.Name, StakeAmount: p.StakeAmount, VenmoHandle: p.VenmoHandle})
	}
	l, err := New(sessionID, entries)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if !p.Outcome.Valid() {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidOutcome, p.Outcome, p.UserID)
		}
		if closed && p.Outcome == OutcomePending {
			return nil, fmt.Errorf("%w: closed ledger has pending participant %s", ErrInvalidPool, p.UserID)
		}
		dst := l.participants[p.UserID]
		dst.Outcome = p.Outcome
		if p.Payout != nil {
			v := *p.Payout
			dst.Payout = &v
		}
	}
	l.closed = closed
	return l, nil
}

func (l *Ledger) SessionID() string { return l.sessionID }

func (l *Ledger) Closed() bool { return l.closed }

// MarkOutcome moves a pending participant to a terminal outcome. Repeating the
// same outcome reports changed=false and no error.
func (l *Ledger) MarkOutcome(userID string, outcome Outcome) (bool, error) {
	if !outcome.Terminal() {
		return false, &ParticipantError{SessionID: l.sessionID, UserID: userID, Requested: outcome, Err: ErrInvalidOutcome}
	}
	p, ok := l.participants[userID]
	if !ok {
		return false, &ParticipantError{SessionID: l.sessionID, UserID: userID, Err: ErrUnknownParticipant}
	}
	if p.Outcome == outcome {
		return false, nil
	}
	if l.closed {
		return false, &ParticipantError{SessionID: l.sessionID, UserID: userID, Current: p.Outcome, Requested: outcome, Err: ErrAlreadyClosed}
	}
	if p.Outcome.Terminal() {
		return false, &ParticipantError{SessionID: l.sessionID, UserID: userID, Current: p.Outcome, Requested: outcome, Err: ErrAlreadyTerminal}
	}
	p.Outcome = outcome
	return true, nil
}

// Close treats every still-pending participant as completed and freezes the ledger.
func (l *Ledger) Close() error {
	if l.closed {
		return fmt.Errorf("session %s: %w", l.sessionID, ErrAlreadyClosed)
	}
	for _, p := range l.participants {
		if p.Outcome == OutcomePending {
			p.Outcome = OutcomeCompleted
		}
	}
	l.closed = true
	return nil
}

// AssignPayouts records the planner's payouts. It succeeds once per ledger.
func (l *Ledger) AssignPayouts(payouts map[string]int64) error {
	if !l.closed {
		return fmt.Errorf("session %s: %w", l.sessionID, ErrLedgerOpen)
	}
	if len(payouts) != len(l.participants) {
		return fmt.Errorf("session %s: %w", l.sessionID, ErrPayoutsInconsistent)
	}
	for id, v := range payouts {
		p, ok := l.participants[id]
		if !ok || v < 0 {
			return fmt.Errorf("session %s: %w: %s", l.sessionID, ErrPayoutsInconsistent, id)
		}
		if p.Payout != nil {
			return fmt.Errorf("session %s: %w", l.sessionID, ErrPayoutsAssigned)
		}
	}
	for id, v := range payouts {
		v := v
		l.participants[id].Payout = &v
	}
	return nil
}

// Participant returns a copy of one participant.
func (l *Ledger) Participant(userID string) (Participant, bool) {
	p, ok := l.participants[userID]
	if !ok {
		return Participant{}, false
	}
	return copyParticipant(p), true
}

// Participants returns copies ordered by ascending user id.
func (l *Ledger) Participants() []Participant {
	out := make([]Participant, 0, len(l.participants))
	for _, p := range l.participants {
		out = append(out, copyParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (l *Ledger) PoolSize() int64 {
	var total int64
	for _, p := range l.participants {
		total += p.StakeAmount
	}
	return total
}

func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		sessionID:    l.sessionID,
		participants: make(map[string]*Participant, len(l.participants)),
		closed:       l.closed,
	}
	for id, p := range l.participants {
		cp := copyParticipant(p)
		c.participants[id] = &cp
	}
	return c
}

func copyParticipant(p *Participant) Participant {
	cp := *p
	if p.Payout != nil {
		v := *p.Payout
		cp.Payout = &v
	}
	return cp
}
