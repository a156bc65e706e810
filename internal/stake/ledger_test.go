package stake

import (
	"errors"
	"testing"
)

func threeWay(t *testing.T) *Ledger {
	t.Helper()
	l, err := New("s1", []Entry{
		{UserID: "carol", StakeAmount: 1000},
		{UserID: "alice", StakeAmount: 1000, VenmoHandle: "alice-v"},
		{UserID: "bob", StakeAmount: 1000},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{name: "empty", entries: nil},
		{name: "zero stake", entries: []Entry{{UserID: "a", StakeAmount: 0}}},
		{name: "negative stake", entries: []Entry{{UserID: "a", StakeAmount: -5}}},
		{name: "empty user id", entries: []Entry{{UserID: "", StakeAmount: 5}}},
		{name: "duplicate", entries: []Entry{{UserID: "a", StakeAmount: 5}, {UserID: "a", StakeAmount: 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("s1", tt.entries)
			if !errors.Is(err, ErrInvalidPool) {
				t.Errorf("New() error = %v, want ErrInvalidPool", err)
			}
		})
	}
}

func TestNew_StartsPending(t *testing.T) {
	l := threeWay(t)
	if got := l.PoolSize(); got != 3000 {
		t.Errorf("PoolSize() = %d, want 3000", got)
	}
	ps := l.Participants()
	want := []string{"alice", "bob", "carol"}
	for i, p := range ps {
		if p.UserID != want[i] {
			t.Errorf("Participants()[%d] = %s, want %s", i, p.UserID, want[i])
		}
		if p.Outcome != OutcomePending {
			t.Errorf("%s outcome = %s, want pending", p.UserID, p.Outcome)
		}
		if p.Payout != nil {
			t.Errorf("%s payout set before settlement", p.UserID)
		}
	}
}

func TestMarkOutcome(t *testing.T) {
	l := threeWay(t)

	changed, err := l.MarkOutcome("bob", OutcomeFailed)
	if err != nil || !changed {
		t.Fatalf("first MarkOutcome = (%v, %v), want (true, nil)", changed, err)
	}

	changed, err = l.MarkOutcome("bob", OutcomeFailed)
	if err != nil || changed {
		t.Errorf("repeated MarkOutcome = (%v, %v), want (false, nil)", changed, err)
	}

	_, err = l.MarkOutcome("bob", OutcomeCompleted)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("conflicting MarkOutcome error = %v, want ErrAlreadyTerminal", err)
	}
	var pe *ParticipantError
	if !errors.As(err, &pe) || pe.UserID != "bob" || pe.Current != OutcomeFailed {
		t.Errorf("error does not carry participant context: %#v", err)
	}

	if _, err := l.MarkOutcome("zed", OutcomeFailed); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("unknown participant error = %v", err)
	}
	if _, err := l.MarkOutcome("alice", OutcomePending); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("pending outcome error = %v", err)
	}

	p, _ := l.Participant("bob")
	if p.Outcome != OutcomeFailed {
		t.Errorf("bob outcome = %s after rejected calls", p.Outcome)
	}
}

func TestClose(t *testing.T) {
	l := threeWay(t)
	if _, err := l.MarkOutcome("carol", OutcomeFailed); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for _, p := range l.Participants() {
		want := OutcomeCompleted
		if p.UserID == "carol" {
			want = OutcomeFailed
		}
		if p.Outcome != want {
			t.Errorf("%s outcome = %s, want %s", p.UserID, p.Outcome, want)
		}
	}

	if err := l.Close(); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("second Close() error = %v, want ErrAlreadyClosed", err)
	}
	if _, err := l.MarkOutcome("alice", OutcomeFailed); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("MarkOutcome after close error = %v, want ErrAlreadyClosed", err)
	}
	// a redelivered violation that was already applied stays a no-op
	if changed, err := l.MarkOutcome("carol", OutcomeFailed); err != nil || changed {
		t.Errorf("redelivery after close = (%v, %v), want (false, nil)", changed, err)
	}
}

func TestAssignPayouts(t *testing.T) {
	l := threeWay(t)
	payouts := map[string]int64{"alice": 1500, "bob": 1500, "carol": 0}
	if err := l.AssignPayouts(payouts); !errors.Is(err, ErrLedgerOpen) {
		t.Fatalf("AssignPayouts on open ledger error = %v", err)
	}
	_ = l.Close()
	if err := l.AssignPayouts(map[string]int64{"alice": 3000}); !errors.Is(err, ErrPayoutsInconsistent) {
		t.Errorf("partial payouts error = %v", err)
	}
	if err := l.AssignPayouts(payouts); err != nil {
		t.Fatalf("AssignPayouts() error = %v", err)
	}
	if err := l.AssignPayouts(payouts); !errors.Is(err, ErrPayoutsAssigned) {
		t.Errorf("second AssignPayouts error = %v", err)
	}
	p, _ := l.Participant("alice")
	if p.Payout == nil || *p.Payout != 1500 {
		t.Errorf("alice payout = %v, want 1500", p.Payout)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	l := threeWay(t)
	c := l.Clone()
	if _, err := c.MarkOutcome("alice", OutcomeFailed); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()
	if l.Closed() {
		t.Error("closing clone closed original")
	}
	if p, _ := l.Participant("alice"); p.Outcome != OutcomePending {
		t.Errorf("original alice outcome = %s", p.Outcome)
	}
}

func TestRestore(t *testing.T) {
	payout := int64(2000)
	zero := int64(0)
	l, err := Restore("s9", []Participant{
		{UserID: "a", StakeAmount: 1000, Outcome: OutcomeCompleted, Payout: &payout},
		{UserID: "b", StakeAmount: 1000, Outcome: OutcomeFailed, Payout: &zero},
	}, true)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !l.Closed() {
		t.Error("restored ledger should be closed")
	}
	payout = 1
	if p, _ := l.Participant("a"); *p.Payout != 2000 {
		t.Errorf("restored payout aliases input: %d", *p.Payout)
	}

	_, err = Restore("s9", []Participant{{UserID: "a", StakeAmount: 1, Outcome: OutcomePending}}, true)
	if !errors.Is(err, ErrInvalidPool) {
		t.Errorf("closed ledger with pending participant error = %v", err)
	}
}
