package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/ledger"
	"github.com/rhowell/potstash/internal/materialize"
	"github.com/rhowell/potstash/internal/models"
	"github.com/rhowell/potstash/internal/projection"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type server struct {
	store   interfaces.Store
	service *ledger.Service
	runner  *materialize.Runner
	log     zerolog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /pots", s.handleCreatePot)
	mux.HandleFunc("GET /pots", s.handleListPots)
	mux.HandleFunc("GET /pots/{id}/projection", s.handleProjection)
	mux.HandleFunc("GET /forecast", s.handleForecast)

	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("PUT /transactions/{id}", s.handleEditTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /rules", s.handleCreateRule)
	mux.HandleFunc("DELETE /rules/{id}", s.handleDeleteRule)

	mux.HandleFunc("POST /materialize/run", s.handleRunCycle)
	return mux
}

type potRequest struct {
	UserID          string           `json:"user_id"`
	Name            string           `json:"name"`
	InitialBalance  decimal.Decimal  `json:"initial_balance"`
	TargetAmount    *decimal.Decimal `json:"target_amount,omitempty"`
	InterestRatePct *decimal.Decimal `json:"interest_rate_pct,omitempty"`
	Color           string           `json:"color,omitempty"`
}

func (s *server) handleCreatePot(w http.ResponseWriter, r *http.Request) {
	var req potRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id and name are required")
		return
	}

	pot, err := s.service.CreatePot(r.Context(), models.Pot{
		UserID:          req.UserID,
		Name:            req.Name,
		CurrentTotal:    req.InitialBalance,
		TargetAmount:    req.TargetAmount,
		InterestRatePct: req.InterestRatePct,
		Color:           req.Color,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pot)
}

func (s *server) handleListPots(w http.ResponseWriter, r *http.Request) {
	pots, err := s.store.ListPots(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pots == nil {
		pots = []models.Pot{}
	}
	writeJSON(w, http.StatusOK, pots)
}

func (s *server) handleProjection(w http.ResponseWriter, r *http.Request) {
	months := projection.DefaultMonthsAhead
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "months must be an integer")
			return
		}
		months = parsed
	}

	forecast, err := s.service.ProjectPot(r.Context(), r.PathValue("id"), months)
	if errors.Is(err, interfaces.ErrPotNotFound) {
		writeError(w, http.StatusNotFound, "pot not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *server) handleForecast(w http.ResponseWriter, r *http.Request) {
	occurrences, err := s.service.ForecastUser(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if occurrences == nil {
		occurrences = []models.VirtualOccurrence{}
	}
	writeJSON(w, http.StatusOK, occurrences)
}

type transactionRequest struct {
	PotID       string          `json:"pot_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
}

func (s *server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	tx, err := s.service.AddTransaction(r.Context(), models.LedgerTransaction{
		PotID:       req.PotID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.ListTransactions(r.Context(), r.URL.Query().Get("pot_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []models.LedgerTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	// An omitted date keeps the stored one rather than defaulting to today.
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		date = parsed
	}

	tx, err := s.service.EditTransaction(r.Context(), r.PathValue("id"), req.Amount, date, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ruleRequest struct {
	PotID       string          `json:"pot_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	AnchorDate  string          `json:"anchor_date"`
	Frequency   string          `json:"frequency"`
	Description string          `json:"description,omitempty"`
}

func (s *server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	anchor, err := parseDate(req.AnchorDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid anchor_date")
		return
	}

	rule, err := s.service.AddRecurringRule(r.Context(), models.RecurringRule{
		PotID:       req.PotID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		AnchorDate:  anchor,
		Frequency:   models.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecurringRule(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunCycle triggers a materialization cycle out of band. The runner
// serializes it against the scheduler, so a manual trigger can never race a
// scheduled tick.
func (s *server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.RunCycle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.Processed == nil {
		result.Processed = []materialize.ProcessedRule{}
	}
	if result.Errors == nil {
		result.Errors = []materialize.RuleError{}
	}
	writeJSON(w, http.StatusOK, result)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now(), nil
	}
	for _, format := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(format, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid date")
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrPotNotFound),
		errors.Is(err, interfaces.ErrRuleNotFound),
		errors.Is(err, interfaces.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
