package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/stakepool/internal/config"
	"github.com/susu3304/stakepool/internal/pool"
)

type API struct {
	router *mux.Router
	pool   *pool.Service
	config *config.Config
}

func New(cfg *config.Config, svc *pool.Service) *API {
	api := &API{
		router: mux.NewRouter(),
		pool:   svc,
		config: cfg,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	r := a.router.PathPrefix("/api/sessions").Subrouter()

	r.HandleFunc("", a.handleCreateSession).Methods("POST")
	r.HandleFunc("/{session_id}", a.handleGetSession).Methods("GET")
	r.HandleFunc("/{session_id}", a.handleDiscardSession).Methods("DELETE")
	r.HandleFunc("/{session_id}/violations", a.handleViolation).Methods("POST")
	r.HandleFunc("/{session_id}/close", a.handleClose).Methods("POST")

	// Payment lifecycle signals
	r.HandleFunc("/{session_id}/transfers/{transfer_id}/sent", a.handleTransferEvent(a.pool.MarkPaymentSent)).Methods("POST")
	r.HandleFunc("/{session_id}/transfers/{transfer_id}/confirm", a.handleTransferEvent(a.pool.ConfirmReceipt)).Methods("POST")
	r.HandleFunc("/{session_id}/transfers/{transfer_id}/dispute", a.handleTransferEvent(a.pool.RaiseDispute)).Methods("POST")
	r.HandleFunc("/{session_id}/transfers/{transfer_id}/overdue", a.handleTransferEvent(a.pool.MarkOverdue)).Methods("POST")
	r.HandleFunc("/{session_id}/transfers/{transfer_id}/payment-link", a.handlePaymentLink).Methods("GET")
}

// Handler wraps the router with CORS.
func (a *API) Handler() http.Handler {
	origins := []string{"*"}
	if a.config != nil && len(a.config.AllowedOrigins) > 0 {
		origins = a.config.AllowedOrigins
	}
	corsOptions := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		// Wildcard origins must not be combined with credentials
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	log.Printf("API server listening on http://%s", a.config.WebBind)
	return http.ListenAndServe(a.config.WebBind, a.Handler())
}
