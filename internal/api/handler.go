// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github-account-mirror/internal/model"
)

// Reader is the subset of the store the API reads from.
type Reader interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccountByLogin(ctx context.Context, login string) (model.Account, error)
	ListRepositoriesByAccount(ctx context.Context, accountID int64) ([]model.Repository, error)
}

// Runner exposes the ingestor's trigger and last-run report.
type Runner interface {
	TriggerNow()
	LastRun() *model.RunSummary
}

// Handler is the container for API dependencies.
type Handler struct {
	db     Reader
	runner Runner
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db Reader, runner Runner, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		runner: runner,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/accounts", h.listAccounts)
		r.Get("/accounts/{login}", h.getAccount)
		r.Get("/accounts/{login}/repos", h.listRepositories)
		r.Get("/runs/latest", h.latestRun)
		r.Post("/ingest", h.triggerIngest)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listAccounts returns every mirrored account.
// GET /v1/accounts
func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.db.ListAccounts(r.Context())
	if err != nil {
		h.logger.Error("Failed to list accounts", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

// getAccount returns one mirrored account by login.
// GET /v1/accounts/{login}
func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	acct, err := h.db.GetAccountByLogin(r.Context(), login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error("Failed to get account", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, acct)
}

// listRepositories returns the mirrored repositories owned by an account.
// GET /v1/accounts/{login}/repos
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	acct, err := h.db.GetAccountByLogin(r.Context(), login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error("Failed to get account", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	repos, err := h.db.ListRepositoriesByAccount(r.Context(), acct.ID)
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// latestRun returns the machine-readable summary of the most recent
// ingestion run.
// GET /v1/runs/latest
func (h *Handler) latestRun(w http.ResponseWriter, r *http.Request) {
	summary := h.runner.LastRun()
	if summary == nil {
		respondWithError(w, http.StatusNotFound, "No ingestion run has finished yet")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// triggerIngest schedules an ingestion run outside the regular interval.
// POST /v1/ingest
func (h *Handler) triggerIngest(w http.ResponseWriter, r *http.Request) {
	h.runner.TriggerNow()
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
