package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cuidarmed/m/domain"
	"cuidarmed/m/internal/config"
	"cuidarmed/m/internal/store"
	"cuidarmed/m/internal/worker"
)

const (
	tokenValidity         = 8 * time.Hour
	tokenValidityRemember = 30 * 24 * time.Hour
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	worker *worker.Worker
	log    *slog.Logger
	cfg    config.Config
}

// New constructs a Handler.
func New(st *store.Store, wk *worker.Worker, log *slog.Logger, cfg config.Config) *Handler {
	return &Handler{store: st, worker: wk, log: log, cfg: cfg}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Post("/login", h.login)

	// Secret-keyed triggers live outside the bearer-token guard: the external
	// scheduler only knows the shared cron secret.
	r.Get("/worker/trigger", h.triggerWorker)
	r.Get("/reports/daily", h.dailyReport)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/medications", func(r chi.Router) {
			r.Get("/", h.listMedications)
			r.Post("/", h.createMedication)
			r.Put("/{id}", h.updateMedication)
			r.Delete("/{id}", h.deleteMedication)
			r.Put("/{id}/restock", h.restockMedication)
		})

		pr.Post("/doses", h.recordDose)
		pr.Get("/history", h.history)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication

type authClaims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(rememberMe bool) (string, error) {
	validity := tokenValidity
	if rememberMe {
		validity = tokenValidityRemember
	}
	claims := authClaims{
		User: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.passwordMatches(req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	token, err := h.generateToken(req.RememberMe)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// passwordMatches checks the shared application password. A bcrypt hash takes
// precedence when configured; the plaintext comparison is the fallback for
// setups that keep the secret directly in the environment.
func (h *Handler) passwordMatches(password string) bool {
	if h.cfg.AppPasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(h.cfg.AppPasswordHash), []byte(password)) == nil
	}
	return h.cfg.AppPassword != "" && password == h.cfg.AppPassword
}

// Medication handlers

type medicationRequest struct {
	Name         string          `json:"name"`
	Dose         string          `json:"dose"`
	CurrentStock *int64          `json:"current_stock"`
	MinStock     *int64          `json:"min_stock"`
	Schedule     domain.Schedule `json:"schedule"`
	ExpiryDate   string          `json:"expiry_date"`
}

type medicationResponse struct {
	domain.Medication
	DaysRemaining int64 `json:"days_remaining"`
}

func withDaysRemaining(med domain.Medication) medicationResponse {
	return medicationResponse{Medication: med, DaysRemaining: med.DaysRemaining()}
}

var scheduleTimePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

func validateMedication(req medicationRequest) []string {
	var details []string

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		details = append(details, "name must have at least 2 characters")
	} else if len(name) > 100 {
		details = append(details, "name cannot exceed 100 characters")
	}

	if len(req.Dose) > 50 {
		details = append(details, "dose cannot exceed 50 characters")
	}

	if req.CurrentStock != nil && *req.CurrentStock < 0 {
		details = append(details, "current_stock cannot be negative")
	}
	if req.MinStock != nil && *req.MinStock < 1 {
		details = append(details, "min_stock must be at least 1")
	}

	if len(req.Schedule) == 0 {
		details = append(details, "at least one schedule time is required")
	} else {
		for _, slot := range req.Schedule {
			if !scheduleTimePattern.MatchString(slot) {
				details = append(details, "schedule times must use the HH:MM format (e.g. 09:00)")
				break
			}
		}
	}

	if req.ExpiryDate != "" {
		if _, err := time.Parse("2006-01-02", req.ExpiryDate); err != nil {
			details = append(details, "expiry_date must be a valid date in YYYY-MM-DD format")
		}
	}

	return details
}

func (req medicationRequest) toDomain() domain.Medication {
	med := domain.Medication{
		Name:     strings.TrimSpace(req.Name),
		Dose:     strings.TrimSpace(req.Dose),
		MinStock: 5,
		Schedule: req.Schedule,
	}
	if req.CurrentStock != nil {
		med.CurrentStock = *req.CurrentStock
	}
	if req.MinStock != nil {
		med.MinStock = *req.MinStock
	}
	med.ExpiryDate = nullIfEmpty(req.ExpiryDate)
	return med
}

func (h *Handler) listMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list medications")
		return
	}
	out := make([]medicationResponse, len(meds))
	for i, med := range meds {
		out[i] = withDaysRemaining(med)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) createMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if details := validateMedication(req); len(details) > 0 {
		respondValidationError(w, details)
		return
	}

	med := req.toDomain()
	id, err := h.store.Create(r.Context(), med)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save medication")
		return
	}

	if med.CurrentStock > 0 {
		if err := h.store.AddMovement(r.Context(), med.Name, med.CurrentStock, domain.MovementInitialLoad); err != nil {
			h.log.Error("unable to log initial load", "medication", med.Name, "err", err)
		}
	}

	created, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load saved medication")
		return
	}
	respondJSON(w, http.StatusCreated, withDaysRemaining(created))
}

func (h *Handler) updateMedication(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medication id")
		return
	}
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if details := validateMedication(req); len(details) > 0 {
		respondValidationError(w, details)
		return
	}

	old, err := h.store.Get(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "medication not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load medication")
		return
	}

	med := req.toDomain()
	med.ID = id
	med.LowStockNotified = old.LowStockNotified
	med.ExpiryNotified = old.ExpiryNotified

	// An expiry date change starts a new expiry episode.
	if !equalDates(med.ExpiryDate, old.ExpiryDate) {
		med.ExpiryNotified = false
	}
	// A manual stock change above the threshold starts a new low-stock episode.
	stockDelta := med.CurrentStock - old.CurrentStock
	if stockDelta != 0 && med.CurrentStock > med.MinStock {
		med.LowStockNotified = false
	}

	if err := h.store.Update(r.Context(), med); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update medication")
		return
	}
	if stockDelta != 0 {
		if err := h.store.AddMovement(r.Context(), med.Name, stockDelta, domain.MovementManualAdjustment); err != nil {
			h.log.Error("unable to log manual adjustment", "medication", med.Name, "err", err)
		}
	}

	updated, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load updated medication")
		return
	}
	respondJSON(w, http.StatusOK, withDaysRemaining(updated))
}

func (h *Handler) deleteMedication(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medication id")
		return
	}
	err = h.store.Delete(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "medication not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to delete medication")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) restockMedication(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medication id")
		return
	}
	var payload struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}

	med, err := h.store.Get(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "medication not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load medication")
		return
	}

	med.CurrentStock += payload.Quantity
	med.LowStockNotified = false
	if err := h.store.Update(r.Context(), med); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to restock medication")
		return
	}
	if err := h.store.AddMovement(r.Context(), med.Name, payload.Quantity, domain.MovementRestock); err != nil {
		h.log.Error("unable to log restock", "medication", med.Name, "err", err)
	}

	respondJSON(w, http.StatusOK, withDaysRemaining(med))
}

func (h *Handler) recordDose(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MedicationID int64 `json:"medication_id"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	med, err := h.store.Get(r.Context(), payload.MedicationID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "medication not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load medication")
		return
	}
	if med.CurrentStock <= 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("no stock left for %s", med.Name))
		return
	}

	med.CurrentStock--
	if med.CurrentStock <= med.MinStock {
		h.log.Warn("low stock after dose", "medication", med.Name, "current_stock", med.CurrentStock)
	}
	if err := h.store.Update(r.Context(), med); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to record dose")
		return
	}

	respondJSON(w, http.StatusOK, withDaysRemaining(med))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	movements, err := h.store.RecentMovements(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load history")
		return
	}
	respondJSON(w, http.StatusOK, movements)
}

// Secret-keyed triggers

func (h *Handler) checkCronSecret(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("secret") != h.cfg.CronSecret {
		h.log.Warn("trigger rejected, bad secret", "path", r.URL.Path)
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (h *Handler) triggerWorker(w http.ResponseWriter, r *http.Request) {
	if !h.checkCronSecret(w, r) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "discount task started"})
	// Fire and forget: the scheduler gets its answer right away while the
	// tick runs in the background.
	go h.worker.RunTick(context.Background())
}

func (h *Handler) dailyReport(w http.ResponseWriter, r *http.Request) {
	if !h.checkCronSecret(w, r) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "daily report started"})
	go h.worker.SendDailyReport(context.Background())
}

// Helpers

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalDates(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationError(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "validation failed",
		"details": details,
	})
}
