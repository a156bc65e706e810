package violation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/susu3304/stakepool/internal/settlement"
	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/stake"
)

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(settlement.Policy{})
	_, err := m.Create("s1", "", []stake.Entry{
		{UserID: "a", StakeAmount: 100},
		{UserID: "b", StakeAmount: 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestOnViolation_Redelivery(t *testing.T) {
	m := newSessions(t)
	h := NewHandler(m)
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := h.OnViolation("s1", "a", t0.Add(time.Minute))
	if err != nil || !res.Applied {
		t.Fatalf("first OnViolation = %+v, %v", res, err)
	}
	res, err = h.OnViolation("s1", "a", t0)
	if err != nil || res.Applied {
		t.Errorf("redelivered OnViolation = %+v, %v", res, err)
	}
	if !res.FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen = %v, want %v", res.FirstSeen, t0)
	}

	snap, _ := m.Snapshot("s1")
	if p, _ := snap.Participant("a"); p.Outcome != stake.OutcomeFailed {
		t.Errorf("a outcome = %s", p.Outcome)
	}
	if p, _ := snap.Participant("b"); p.Outcome != stake.OutcomePending {
		t.Errorf("b outcome = %s", p.Outcome)
	}
}

func TestOnViolation_Errors(t *testing.T) {
	m := newSessions(t)
	h := NewHandler(m)

	if _, err := h.OnViolation("s1", "zed", time.Now()); !errors.Is(err, stake.ErrUnknownParticipant) {
		t.Errorf("unknown participant error = %v", err)
	}
	if _, err := h.OnViolation("s2", "a", time.Now()); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("unknown session error = %v", err)
	}
	if _, err := m.Close("s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.OnViolation("s1", "a", time.Now()); !errors.Is(err, stake.ErrAlreadyClosed) {
		t.Errorf("late violation error = %v", err)
	}
	if _, ok := h.FirstSeen("s1", "a"); ok {
		t.Error("rejected violation should not be recorded")
	}
}

func TestOnViolation_Concurrent(t *testing.T) {
	m := newSessions(t)
	h := NewHandler(m)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := map[string]int{}
	for i := 0; i < 20; i++ {
		for _, uid := range []string{"a", "b"} {
			wg.Add(1)
			go func(uid string) {
				defer wg.Done()
				res, err := h.OnViolation("s1", uid, time.Now())
				if err != nil {
					t.Errorf("OnViolation error = %v", err)
					return
				}
				if res.Applied {
					mu.Lock()
					applied[uid]++
					mu.Unlock()
				}
			}(uid)
		}
	}
	wg.Wait()

	if applied["a"] != 1 || applied["b"] != 1 {
		t.Errorf("applied counts = %v, want one each", applied)
	}

	h.Forget("s1")
	if _, ok := h.FirstSeen("s1", "a"); ok {
		t.Error("Forget() left timestamps behind")
	}
}
