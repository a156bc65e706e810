package transfer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrIllegalTransition = errors.New("illegal transfer transition")
	ErrUnknownTransfer   = errors.New("unknown transfer")
	ErrInvalidTransfer   = errors.New("invalid transfer")
	ErrInvalidEvent      = errors.New("invalid transfer event")
)

// Transfer is a single peer-to-peer obligation: FromUserID pays ToUserID.
type Transfer struct {
	ID         string
	FromUserID string
	ToUserID   string
	Amount     int64
	Status     Status
}

// Transition is what Apply returns so a caller can decide whether to notify.
type Transition struct {
	TransferID string
	Event      Event
	From       Status
	To         Status
	Changed    bool
}

// TransitionError names the transfer and attempted event of a rejected call.
type TransitionError struct {
	TransferID string
	Status     Status
	Event      Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transfer %s: cannot apply %s while %s", e.TransferID, e.Event, e.Status)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// Ledger owns the lifecycle of every transfer of one session. Not safe for
// concurrent use.
type Ledger struct {
	transfers map[string]*Transfer
}

// NewLedger validates the planned transfers. Only pending and none are valid
// starting states.
func NewLedger(planned []Transfer) (*Ledger, error) {
	l, err := build(planned)
	if err != nil {
		return nil, err
	}
	for _, t := range planned {
		if t.Status != StatusPending && t.Status != StatusNone {
			return nil, fmt.Errorf("%w: %s starts as %s", ErrInvalidTransfer, t.ID, t.Status)
		}
	}
	return l, nil
}

// Restore rebuilds a ledger from persisted transfers in any valid status.
func Restore(transfers []Transfer) (*Ledger, error) {
	for _, t := range transfers {
		if !t.Status.Valid() {
			return nil, fmt.Errorf("%w: %s has status %q", ErrInvalidTransfer, t.ID, t.Status)
		}
	}
	return build(transfers)
}

func build(transfers []Transfer) (*Ledger, error) {
	l := &Ledger{transfers: make(map[string]*Transfer, len(transfers))}
	for _, t := range transfers {
		switch {
		case t.ID == "":
			return nil, fmt.Errorf("%w: empty id", ErrInvalidTransfer)
		case t.Amount <= 0:
			return nil, fmt.Errorf("%w: %s amount %d", ErrInvalidTransfer, t.ID, t.Amount)
		case t.FromUserID == "" || t.ToUserID == "" || t.FromUserID == t.ToUserID:
			return nil, fmt.Errorf("%w: %s from %q to %q", ErrInvalidTransfer, t.ID, t.FromUserID, t.ToUserID)
		}
		if _, dup := l.transfers[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidTransfer, t.ID)
		}
		t := t
		l.transfers[t.ID] = &t
	}
	return l, nil
}

// Apply drives one transfer through the state machine. A rejected event
// leaves the transfer untouched.
func (l *Ledger) Apply(id string, e Event) (Transition, error) {
	if !e.Valid() {
		return Transition{}, fmt.Errorf("%w: %q", ErrInvalidEvent, e)
	}
	t, ok := l.transfers[id]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrUnknownTransfer, id)
	}
	to, ok := next(t.Status, e)
	if !ok {
		return Transition{}, &TransitionError{TransferID: id, Status: t.Status, Event: e}
	}
	tr := Transition{TransferID: id, Event: e, From: t.Status, To: to, Changed: to != t.Status}
	t.Status = to
	return tr, nil
}

func (l *Ledger) Get(id string) (Transfer, bool) {
	t, ok := l.transfers[id]
	if !ok {
		return Transfer{}, false
	}
	return *t, true
}

// Transfers returns copies ordered by id (t2 before t10).
func (l *Ledger) Transfers() []Transfer {
	out := make([]Transfer, 0, len(l.transfers))
	for _, t := range l.transfers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

// Outstanding is the total still owed on open transfers.
func (l *Ledger) Outstanding() int64 {
	var total int64
	for _, t := range l.transfers {
		if t.Status.Open() {
			total += t.Amount
		}
	}
	return total
}

// Settled reports whether every materialized transfer has reached settled.
func (l *Ledger) Settled() bool {
	for _, t := range l.transfers {
		if t.Status != StatusSettled && t.Status != StatusNone {
			return false
		}
	}
	return true
}

func (l *Ledger) Clone() *Ledger {
	c := &Ledger{transfers: make(map[string]*Transfer, len(l.transfers))}
	for id, t := range l.transfers {
		cp := *t
		c.transfers[id] = &cp
	}
	return c
}

func idLess(a, b string) bool {
	na, erra := strconv.Atoi(strings.TrimPrefix(a, "t"))
	nb, errb := strconv.Atoi(strings.TrimPrefix(b, "t"))
	if erra == nil && errb == nil && na != nb {
		return na < nb
	}
	return a < b
}
