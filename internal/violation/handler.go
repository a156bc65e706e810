package violation

import (
	"log"
	"sync"
	"time"

	"github.com/susu3304/stakepool/internal/stake"
)

// Marker applies an outcome through the session's exclusive access path.
type Marker interface {
	MarkOutcome(sessionID, userID string, outcome stake.Outcome) (bool, error)
}

type Result struct {
	SessionID string
	UserID    string
	// Applied is false when the participant had already been marked failed.
	Applied   bool
	FirstSeen time.Time
}

// Handler turns rule-violation signals from the screen-time monitor into
// failed outcomes.
type Handler struct {
	marker Marker

	mu        sync.Mutex
	firstSeen map[key]time.Time
}

type key struct {
	sessionID string
	userID    string
}

func NewHandler(marker Marker) *Handler {
	return &Handler{marker: marker, firstSeen: make(map[key]time.Time)}
}

// OnViolation marks the participant failed. The monitor may redeliver the
// same signal; only the first one changes anything.
func (h *Handler) OnViolation(sessionID, userID string, at time.Time) (Result, error) {
	applied, err := h.marker.MarkOutcome(sessionID, userID, stake.OutcomeFailed)
	if err != nil {
		log.Printf("violation: rejected for session %s user %s at %s: %v", sessionID, userID, at.Format(time.RFC3339), err)
		return Result{}, err
	}

	k := key{sessionID, userID}
	h.mu.Lock()
	first, seen := h.firstSeen[k]
	if !seen || at.Before(first) {
		h.firstSeen[k] = at
		first = at
	}
	h.mu.Unlock()

	if applied {
		log.Printf("violation: session %s user %s marked failed", sessionID, userID)
	}
	return Result{SessionID: sessionID, UserID: userID, Applied: applied, FirstSeen: first}, nil
}

// FirstSeen returns the earliest violation time recorded for a participant.
func (h *Handler) FirstSeen(sessionID, userID string) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.firstSeen[key{sessionID, userID}]
	return t, ok
}

// Forget drops the timestamps kept for a session.
func (h *Handler) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.firstSeen {
		if k.sessionID == sessionID {
			delete(h.firstSeen, k)
		}
	}
}
