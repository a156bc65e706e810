package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/susu3304/stakepool/internal/pool"
	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

type createSessionRequest struct {
	SessionID    string `json:"session_id"`
	ChannelID    string `json:"channel_id"`
	Participants []struct {
		UserID      string `json:"user_id"`
		Name        string `json:"name"`
		StakeAmount int64  `json:"stake_amount"`
		VenmoHandle string `json:"venmo_handle"`
	} `json:"participants"`
}

type violationRequest struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type transitionResponse struct {
	TransferID string          `json:"transfer_id"`
	Event      transfer.Event  `json:"event"`
	From       transfer.Status `json:"from"`
	Status     transfer.Status `json:"status"`
	Changed    bool            `json:"changed"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	entries := make([]stake.Entry, 0, len(req.Participants))
	for _, p := range req.Participants {
		entries = append(entries, stake.Entry{
			UserID:      p.UserID,
			Name:        p.Name,
			StakeAmount: p.StakeAmount,
			VenmoHandle: p.VenmoHandle,
		})
	}

	snap, err := a.pool.CreateSession(r.Context(), req.SessionID, req.ChannelID, entries)
	respond(w, http.StatusCreated, snap, err)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.pool.Snapshot(mux.Vars(r)["session_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	err := a.pool.DiscardSession(r.Context(), mux.Vars(r)["session_id"])
	respond(w, http.StatusNoContent, nil, err)
}

func (a *API) handleViolation(w http.ResponseWriter, r *http.Request) {
	var req violationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	res, err := a.pool.ReportViolation(r.Context(), mux.Vars(r)["session_id"], req.UserID, req.Timestamp)
	respond(w, http.StatusOK, map[string]interface{}{
		"user_id":    res.UserID,
		"applied":    res.Applied,
		"first_seen": res.FirstSeen,
	}, err)
}

func (a *API) handleClose(w http.ResponseWriter, r *http.Request) {
	snap, err := a.pool.CloseSession(r.Context(), mux.Vars(r)["session_id"])
	respond(w, http.StatusOK, snap, err)
}

type transferSignal func(ctx context.Context, sessionID, transferID string) (transfer.Transition, error)

func (a *API) handleTransferEvent(signal transferSignal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		tr, err := signal(r.Context(), vars["session_id"], vars["transfer_id"])
		respond(w, http.StatusOK, transitionResponse{
			TransferID: tr.TransferID,
			Event:      tr.Event,
			From:       tr.From,
			Status:     tr.To,
			Changed:    tr.Changed,
		}, err)
	}
}

func (a *API) handlePaymentLink(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uri, err := a.pool.PaymentLink(vars["session_id"], vars["transfer_id"], r.URL.Query().Get("note"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

type notPersistedResponse struct {
	Error     string      `json:"error"`
	Persisted bool        `json:"persisted"`
	Result    interface{} `json:"result,omitempty"`
}

// respond writes v with status on success. A change the engine took but the
// store did not gets 503 with the result attached; anything else goes
// through writeError.
func respond(w http.ResponseWriter, status int, v interface{}, err error) {
	switch {
	case err == nil && status == http.StatusNoContent:
		w.WriteHeader(status)
	case err == nil:
		writeJSON(w, status, v)
	case errors.Is(err, pool.ErrNotPersisted):
		log.Printf("api: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, notPersistedResponse{Error: err.Error(), Result: v})
	default:
		writeError(w, err)
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, stake.ErrUnknownParticipant),
		errors.Is(err, transfer.ErrUnknownTransfer):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists),
		errors.Is(err, session.ErrNotSettled),
		errors.Is(err, stake.ErrAlreadyTerminal),
		errors.Is(err, stake.ErrAlreadyClosed),
		errors.Is(err, transfer.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, stake.ErrInvalidPool),
		errors.Is(err, transfer.ErrInvalidRecipient),
		errors.Is(err, transfer.ErrInvalidAmount):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrNotPersisted):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
