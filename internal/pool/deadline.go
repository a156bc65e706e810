package pool

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/susu3304/stakepool/internal/db"
	"github.com/susu3304/stakepool/internal/transfer"
)

// OverdueSource finds pending transfers planned before a cutoff. Implemented by db.DB.
type OverdueSource interface {
	OverdueCandidates(ctx context.Context, cutoff time.Time) ([]db.OverdueCandidate, error)
}

type DeadlineConfig struct {
	// Deadline is how long a pending transfer may stay unpaid.
	Deadline time.Duration
	Interval time.Duration
}

// DeadlineWorker delivers deadline_elapsed to transfers left unpaid past the
// deadline and retries saves that failed earlier. It runs with or without
// Discord.
type DeadlineWorker struct {
	source OverdueSource
	svc    *Service
	cfg    DeadlineConfig
	now    func() time.Time
}

func NewDeadlineWorker(source OverdueSource, svc *Service, cfg DeadlineConfig) *DeadlineWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &DeadlineWorker{source: source, svc: svc, cfg: cfg, now: time.Now}
}

// Run sweeps every interval until ctx is cancelled.
func (w *DeadlineWorker) Run(ctx context.Context) {
	log.Printf("deadline: sweeping every %s for transfers unpaid after %s", w.cfg.Interval, w.cfg.Deadline)
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many transfers it moved to overdue.
func (w *DeadlineWorker) Sweep(ctx context.Context) int {
	if n, err := w.svc.FlushUnsaved(ctx); err != nil {
		log.Printf("deadline: %d unsaved sessions written, others still failing: %v", n, err)
	} else if n > 0 {
		log.Printf("deadline: wrote %d previously unsaved sessions", n)
	}

	candidates, err := w.source.OverdueCandidates(ctx, w.now().Add(-w.cfg.Deadline))
	if err != nil {
		log.Printf("deadline: failed to load candidates: %v", err)
		return 0
	}

	marked := 0
	for _, c := range candidates {
		tr, err := w.svc.MarkOverdue(ctx, c.SessionID, c.TransferID)
		switch {
		case errors.Is(err, transfer.ErrIllegalTransition):
			// payment was reported after the store was read
			continue
		case err != nil && !errors.Is(err, ErrNotPersisted):
			log.Printf("deadline: failed to mark %s/%s overdue: %v", c.SessionID, c.TransferID, err)
			continue
		}
		if tr.Changed {
			marked++
			log.Printf("deadline: transfer %s/%s is overdue", c.SessionID, c.TransferID)
		}
	}
	return marked
}
