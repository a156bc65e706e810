package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
	"github.com/susu3304/stakepool/internal/violation"
)

// ErrNotPersisted marks a change the engine committed but the store has not
// recorded yet. The snapshot is kept and written again by FlushUnsaved or the
// next save of the same session.
var ErrNotPersisted = errors.New("change not persisted")

// Store persists snapshots. Implemented by db.DB.
type Store interface {
	SaveSession(ctx context.Context, snap session.Snapshot) error
	LoadSessions(ctx context.Context) ([]session.Snapshot, error)
	RecordViolation(ctx context.Context, sessionID, userID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Notifier tells participants about state changes. Implemented by bot.Notifier.
type Notifier interface {
	TransferChanged(ctx context.Context, snap session.Snapshot, tr transfer.Transition) error
	SessionClosed(ctx context.Context, snap session.Snapshot) error
}

// Service applies inbound signals to the engine, then persists and notifies.
// The engine commits first; a failing store or notifier is reported to the
// caller but never rolls the engine back.
type Service struct {
	sessions   *session.Manager
	violations *violation.Handler
	store      Store
	notifier   Notifier

	mu      sync.Mutex
	unsaved map[string]session.Snapshot
}

func NewService(sessions *session.Manager, store Store) *Service {
	return &Service{
		sessions:   sessions,
		violations: violation.NewHandler(sessions),
		store:      store,
		unsaved:    make(map[string]session.Snapshot),
	}
}

// SetNotifier attaches a notifier once the bot is up.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Restore loads every persisted session into memory.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	snaps, err := s.store.LoadSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	for _, snap := range snaps {
		if err := s.sessions.Restore(snap); err != nil {
			return 0, err
		}
	}
	return len(snaps), nil
}

func (s *Service) CreateSession(ctx context.Context, sessionID, channelID string, entries []stake.Entry) (session.Snapshot, error) {
	snap, err := s.sessions.Create(sessionID, channelID, entries)
	if err != nil {
		return session.Snapshot{}, err
	}
	return snap, s.save(ctx, snap)
}

func (s *Service) ReportViolation(ctx context.Context, sessionID, userID string, at time.Time) (violation.Result, error) {
	res, err := s.violations.OnViolation(sessionID, userID, at)
	if err != nil {
		return res, err
	}
	if s.store != nil {
		if err := s.store.RecordViolation(ctx, sessionID, userID, at); err != nil {
			log.Printf("pool: failed to record violation for session %s: %v", sessionID, err)
		}
	}
	if !res.Applied {
		return res, s.flushSession(ctx, sessionID)
	}
	snap, err := s.sessions.Snapshot(sessionID)
	if err != nil {
		return res, err
	}
	return res, s.save(ctx, snap)
}

// CloseSession settles the session. Closing an already closed session whose
// close was never persisted writes it again and succeeds.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (session.Snapshot, error) {
	snap, err := s.sessions.Close(sessionID)
	if errors.Is(err, stake.ErrAlreadyClosed) && s.isUnsaved(sessionID) {
		if err := s.flushSession(ctx, sessionID); err != nil {
			cur, _ := s.sessions.Snapshot(sessionID)
			return cur, err
		}
		return s.sessions.Snapshot(sessionID)
	}
	if err != nil {
		return session.Snapshot{}, err
	}
	if snap.UnresolvedPool {
		log.Printf("pool: session %s closed with no completers, pool of %d unassigned", sessionID, snap.PoolSize)
	}
	saveErr := s.save(ctx, snap)
	s.violations.Forget(sessionID)
	if s.notifier != nil {
		if err := s.notifier.SessionClosed(ctx, snap); err != nil {
			log.Printf("pool: failed to notify close of session %s: %v", sessionID, err)
		}
	}
	return snap, saveErr
}

func (s *Service) MarkPaymentSent(ctx context.Context, sessionID, transferID string) (transfer.Transition, error) {
	return s.apply(ctx, sessionID, transferID, transfer.EventPaymentSent)
}

func (s *Service) ConfirmReceipt(ctx context.Context, sessionID, transferID string) (transfer.Transition, error) {
	return s.apply(ctx, sessionID, transferID, transfer.EventReceiptConfirmed)
}

func (s *Service) RaiseDispute(ctx context.Context, sessionID, transferID string) (transfer.Transition, error) {
	return s.apply(ctx, sessionID, transferID, transfer.EventDisputed)
}

func (s *Service) MarkOverdue(ctx context.Context, sessionID, transferID string) (transfer.Transition, error) {
	return s.apply(ctx, sessionID, transferID, transfer.EventDeadlineElapsed)
}

func (s *Service) apply(ctx context.Context, sessionID, transferID string, ev transfer.Event) (transfer.Transition, error) {
	tr, snap, err := s.sessions.Apply(sessionID, transferID, ev)
	if err != nil {
		return tr, err
	}
	if !tr.Changed {
		return tr, s.flushSession(ctx, sessionID)
	}
	saveErr := s.save(ctx, snap)
	if s.notifier != nil {
		if err := s.notifier.TransferChanged(ctx, snap, tr); err != nil {
			log.Printf("pool: failed to notify %s on transfer %s/%s: %v", tr.To, sessionID, transferID, err)
		}
	}
	return tr, saveErr
}

// DiscardSession forgets a session in memory and in the store.
func (s *Service) DiscardSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Discard(sessionID); err != nil {
		return err
	}
	s.violations.Forget(sessionID)
	s.mu.Lock()
	delete(s.unsaved, sessionID)
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("pool: failed to delete session %s: %v", sessionID, err)
		return fmt.Errorf("delete session %s: %w: %w", sessionID, ErrNotPersisted, err)
	}
	return nil
}

func (s *Service) Snapshot(sessionID string) (session.Snapshot, error) {
	return s.sessions.Snapshot(sessionID)
}

func (s *Service) PaymentLink(sessionID, transferID, note string) (string, error) {
	return s.sessions.PaymentLink(sessionID, transferID, note)
}

// Unsaved returns the ids of sessions whose latest change is not in the store.
func (s *Service) Unsaved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.unsaved))
	for id := range s.unsaved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FlushUnsaved writes every session left behind by a failed save. It returns
// how many were written.
func (s *Service) FlushUnsaved(ctx context.Context) (int, error) {
	var errs []error
	flushed := 0
	for _, id := range s.Unsaved() {
		if err := s.flushSession(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		flushed++
	}
	return flushed, errors.Join(errs...)
}

func (s *Service) isUnsaved(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unsaved[sessionID]
	return ok
}

// flushSession re-saves the current snapshot if an earlier save failed.
func (s *Service) flushSession(ctx context.Context, sessionID string) error {
	if !s.isUnsaved(sessionID) {
		return nil
	}
	snap, err := s.sessions.Snapshot(sessionID)
	if err != nil {
		// discarded since
		s.mu.Lock()
		delete(s.unsaved, sessionID)
		s.mu.Unlock()
		return nil
	}
	return s.save(ctx, snap)
}

func (s *Service) save(ctx context.Context, snap session.Snapshot) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSession(ctx, snap); err != nil {
		log.Printf("pool: failed to save session %s v%d, will retry: %v", snap.SessionID, snap.Version, err)
		s.mu.Lock()
		if prev, ok := s.unsaved[snap.SessionID]; !ok || prev.Version < snap.Version {
			s.unsaved[snap.SessionID] = snap
		}
		s.mu.Unlock()
		return fmt.Errorf("save session %s: %w: %w", snap.SessionID, ErrNotPersisted, err)
	}
	s.mu.Lock()
	if prev, ok := s.unsaved[snap.SessionID]; ok && prev.Version <= snap.Version {
		delete(s.unsaved, snap.SessionID)
	}
	s.mu.Unlock()
	return nil
}
