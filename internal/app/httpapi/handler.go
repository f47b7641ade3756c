// Package httpapi exposes the service over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vrn21/payfree/internal/app/services/accounts"
	"github.com/vrn21/payfree/internal/app/services/auth"
	"github.com/vrn21/payfree/internal/app/services/transfers"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/internal/middleware"
	"github.com/vrn21/payfree/pkg/logger"
)

// Handler routes API requests to the services.
type Handler struct {
	accounts  *accounts.Service
	auth      *auth.Service
	transfers *transfers.Service
	log       *logger.Logger
}

// New constructs the API handler.
func New(accountsSvc *accounts.Service, authSvc *auth.Service, transfersSvc *transfers.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{accounts: accountsSvc, auth: authSvc, transfers: transfersSvc, log: log}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/", h.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/auth/signup", h.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)

	r.HandleFunc("/users/{username}/profile", h.handleProfile).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}/balance", h.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}/transactions", h.handleTransactions).Methods(http.MethodGet)

	r.HandleFunc("/transfers", h.handleTransfer).Methods(http.MethodPost)
	r.HandleFunc("/transfers/{id}", h.handleGetTransfer).Methods(http.MethodGet)
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "payfree", "status": "ok"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type signupRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Phone    string `json:"phno"`
	Address  string `json:"address"`
	Password string `json:"password"`
	Balance  int64  `json:"balance"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.auth.Signup(r.Context(), auth.SignupInput{
		Name:     req.Name,
		Username: req.Username,
		Phone:    req.Phone,
		Address:  req.Address,
		Password: req.Password,
		Balance:  req.Balance,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	acct, err := h.accounts.Profile(r.Context(), username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	username, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	balance, err := h.accounts.Balance(r.Context(), username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"username": username, "balance": balance})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	username, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	history, err := h.transfers.ListForAccount(r.Context(), username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"username": username, "transactions": history})
}

type transferRequest struct {
	TxnID  string `json:"txn_id,omitempty"`
	Amount int64  `json:"amount"`
	From   string `json:"from_username"`
	To     string `json:"to_username"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subject, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if subject != req.From {
		writeError(w, http.StatusForbidden, "transfers may only be sent from your own account")
		return
	}

	txnID := uuid.Nil
	if req.TxnID != "" {
		parsed, err := uuid.Parse(req.TxnID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "txn_id must be a UUID")
			return
		}
		txnID = parsed
	}

	entry, err := h.transfers.Transfer(r.Context(), req.From, req.To, req.Amount, txnID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "transfer id must be a UUID")
		return
	}

	entry, err := h.transfers.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	subject, _ := middleware.UsernameFromContext(r.Context())
	if subject != entry.From && subject != entry.To {
		writeError(w, http.StatusForbidden, "transfer belongs to another account")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// authorizedUser resolves the {username} path variable and verifies it
// matches the authenticated subject.
func (h *Handler) authorizedUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := mux.Vars(r)["username"]
	subject, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	if subject != username {
		writeError(w, http.StatusForbidden, "account belongs to another user")
		return "", false
	}
	return username, true
}

// writeServiceError maps service and storage errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrMissingField),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrNegativeBalance),
		errors.Is(err, accounts.ErrInvalidUsername),
		errors.Is(err, transfers.ErrInvalidAmount),
		errors.Is(err, transfers.ErrSelfTransfer),
		errors.Is(err, storage.ErrInsufficientFunds):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrAccountNotFound),
		errors.Is(err, storage.ErrTransferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrUsernameTaken),
		errors.Is(err, storage.ErrDuplicateTransfer),
		errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
