package pool

import (
	"context"
	"testing"
	"time"

	"github.com/susu3304/stakepool/internal/db"
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

type fakeSource struct {
	candidates []db.OverdueCandidate
	cutoff     time.Time
}

func (f *fakeSource) OverdueCandidates(_ context.Context, cutoff time.Time) ([]db.OverdueCandidate, error) {
	f.cutoff = cutoff
	return f.candidates, nil
}

func TestDeadlineWorker_Sweep(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, n := newService(store)
	_, _ = svc.CreateSession(ctx, "s1", "chan", []stake.Entry{
		{UserID: "a", StakeAmount: 500},
		{UserID: "b", StakeAmount: 500},
		{UserID: "c", StakeAmount: 500},
	})
	_, _ = svc.ReportViolation(ctx, "s1", "b", time.Now())
	_, _ = svc.ReportViolation(ctx, "s1", "c", time.Now())
	_, _ = svc.CloseSession(ctx, "s1")
	_, _ = svc.MarkPaymentSent(ctx, "s1", "t2")

	source := &fakeSource{candidates: []db.OverdueCandidate{
		{SessionID: "s1", TransferID: "t1"},
		// paid after the store was read
		{SessionID: "s1", TransferID: "t2"},
		{SessionID: "gone", TransferID: "t1"},
	}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewDeadlineWorker(source, svc, DeadlineConfig{Deadline: 48 * time.Hour})
	w.now = func() time.Time { return now }

	if got := w.Sweep(ctx); got != 1 {
		t.Errorf("Sweep() marked %d, want 1", got)
	}
	if !source.cutoff.Equal(now.Add(-48 * time.Hour)) {
		t.Errorf("cutoff = %v", source.cutoff)
	}
	snap, _ := svc.Snapshot("s1")
	if tr, _ := snap.Transfer("t1"); tr.Status != transfer.StatusOverdue {
		t.Errorf("t1 status = %s", tr.Status)
	}
	if tr, _ := snap.Transfer("t2"); tr.Status != transfer.StatusPaymentIndicated {
		t.Errorf("t2 status = %s", tr.Status)
	}
	if last := n.transitions[len(n.transitions)-1]; last.To != transfer.StatusOverdue {
		t.Errorf("last notification to %s", last.To)
	}

	// the same rows again change nothing
	if got := w.Sweep(ctx); got != 0 {
		t.Errorf("second Sweep() marked %d, want 0", got)
	}
}

func TestDeadlineWorker_SweepFlushesUnsaved(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newService(store)

	store.failSave = true
	_, _ = svc.CreateSession(ctx, "s1", "", entries)
	_, _ = svc.CloseSession(ctx, "s1")
	store.failSave = false

	w := NewDeadlineWorker(&fakeSource{}, svc, DeadlineConfig{Deadline: time.Hour})
	w.Sweep(ctx)

	if saved, ok := store.saved["s1"]; !ok || !saved.Closed {
		t.Errorf("stored s1 = %+v, %v, want closed", saved, ok)
	}
}

func TestDeadlineWorker_RunStopsOnCancel(t *testing.T) {
	svc, _ := newService(newMemStore())
	w := NewDeadlineWorker(&fakeSource{}, svc, DeadlineConfig{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
