package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/service"
	"trust-engine/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ingestTimeout bounds the detached goroutine behind the fire-and-forget
// ingest endpoint.
const ingestTimeout = 10 * time.Second

// EngineHandler handles HTTP requests for the trust engine.
type EngineHandler struct {
	activityService *service.ActivityService
	libraryService  *service.LibraryService
	trustService    *service.TrustService
	privacyService  *service.PrivacyService
	logger          *zap.Logger
}

func NewEngineHandler(
	activityService *service.ActivityService,
	libraryService *service.LibraryService,
	trustService *service.TrustService,
	privacyService *service.PrivacyService,
	logger *zap.Logger,
) *EngineHandler {
	return &EngineHandler{
		activityService: activityService,
		libraryService:  libraryService,
		trustService:    trustService,
		privacyService:  privacyService,
		logger:          logger,
	}
}

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	return Response{Success: false, Error: err.Error(), Message: message}
}

// RegisterRoutes registers all engine routes.
func (h *EngineHandler) RegisterRoutes(router chi.Router) {
	router.Route("/activity", func(r chi.Router) {
		r.Post("/track", h.TrackActivity)
	})
	router.Route("/logins", func(r chi.Router) {
		r.Post("/", h.TrackLogin)
		r.Post("/failed", h.TrackFailedLogin)
	})
	router.Route("/library", func(r chi.Router) {
		r.Get("/{userID}", h.GetLibrary)
	})
	router.Route("/trust", func(r chi.Router) {
		r.Post("/evaluate", h.EvaluateTrust)
	})
	router.Route("/patterns", func(r chi.Router) {
		r.Get("/{userID}", h.GetLoginPattern)
	})
	router.Route("/recovery", func(r chi.Router) {
		r.Post("/{userID}", h.GenerateRecovery)
		r.Post("/{userID}/verify", h.VerifyRecovery)
	})
	router.Route("/privacy", func(r chi.Router) {
		r.Get("/export/{userID}", h.ExportData)
		r.Delete("/data/{userID}", h.DeleteData)
	})
}

type trackRequest struct {
	UserID    string          `json:"user_id"`
	Symbol    string          `json:"symbol"`
	AssetType string          `json:"asset_type"`
	Action    string          `json:"action_type"`
	Metadata  models.Metadata `json:"metadata"`
}

// TrackActivity accepts one interaction and processes it off the
// request path. The caller gets 202 as soon as the payload parses;
// ingest failures surface in logs, never to the terminal client.
func (h *EngineHandler) TrackActivity(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Symbol == "" {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "user_id and symbol are required")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		h.activityService.TrackRequest(ctx, req.UserID)
		if err := h.activityService.Track(ctx, req.UserID, req.Symbol, req.AssetType, req.Action, req.Metadata); err != nil {
			h.logger.Error("Activity ingest failed",
				util.String("user_id", req.UserID),
				util.String("symbol", req.Symbol),
				util.ErrorField(err))
		}
	}()

	h.respondWithJSON(w, http.StatusAccepted, successResponse(nil, "Activity accepted"))
}

// TrackLogin records one successful login observation.
func (h *EngineHandler) TrackLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var lc models.LoginContext
	if err := json.NewDecoder(r.Body).Decode(&lc); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := h.activityService.TrackLogin(ctx, &lc); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to record login")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Login recorded"))
}

type failedLoginRequest struct {
	UserID string `json:"user_id"`
}

// TrackFailedLogin records one failed login attempt.
func (h *EngineHandler) TrackFailedLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req failedLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := h.activityService.TrackFailedLogin(ctx, req.UserID); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to record failed login")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Failed login recorded"))
}

// GetLibrary returns the current ranked library snapshot for a user.
func (h *EngineHandler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	snapshot, err := h.libraryService.GenerateSnapshot(ctx, userID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to generate library")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(snapshot, "Library generated"))
	h.logger.Info("Library served via HTTP",
		util.String("user_id", userID),
		util.Int("items", snapshot.TotalItems),
		util.Duration("duration", time.Since(startTime)))
}

// EvaluateTrust scores one login attempt.
func (h *EngineHandler) EvaluateTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var lc models.LoginContext
	if err := json.NewDecoder(r.Body).Decode(&lc); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if lc.IPAddress == "" {
		lc.IPAddress = r.RemoteAddr
	}
	if lc.UserAgent == "" {
		lc.UserAgent = r.UserAgent()
	}

	result, err := h.trustService.Evaluate(ctx, &lc)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to evaluate trust")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Trust evaluated"))
	h.logger.Info("Trust evaluated via HTTP",
		util.String("user_id", lc.UserID),
		util.Float64("trust_score", result.TrustScore),
		util.Duration("duration", time.Since(startTime)))
}

// GetLoginPattern returns the stored login-time profile for a user.
func (h *EngineHandler) GetLoginPattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	pattern, err := h.activityService.LoginPattern(ctx, userID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to load login pattern")
		return
	}

	summary := map[string]interface{}{
		"pattern":             pattern,
		"most_common_hour":    mostCommonKey(pattern.HourHistogram),
		"most_common_weekday": mostCommonKey(pattern.WeekdayHistogram),
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(summary, "Login pattern loaded"))
}

// mostCommonKey picks the histogram bucket with the highest count,
// breaking ties on the lexically smaller key.
func mostCommonKey(histogram map[string]int) string {
	best := ""
	bestCount := 0
	for key, count := range histogram {
		if count > bestCount || (count == bestCount && best != "" && key < best) {
			best = key
			bestCount = count
		}
	}
	return best
}

// GenerateRecovery mints a recovery code for a user. The plaintext code
// appears in this response and nowhere else, ever.
func (h *EngineHandler) GenerateRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	code, err := h.privacyService.GenerateRecoveryArtifact(ctx, userID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to generate recovery code")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(map[string]string{
		"recovery_code": code,
	}, "Store this code safely; it will not be shown again"))
}

type verifyRecoveryRequest struct {
	RecoveryCode string `json:"recovery_code"`
}

// VerifyRecovery checks a recovery code and returns the library bundle
// on match.
func (h *EngineHandler) VerifyRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	var req verifyRecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	bundle, err := h.privacyService.VerifyRecoveryCode(ctx, userID, req.RecoveryCode)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Recovery verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(bundle, "Recovery code verified"))
}

// ExportData returns everything the engine holds about a user.
func (h *EngineHandler) ExportData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	payload, err := h.privacyService.Export(ctx, userID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to export data")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(payload, "Data exported"))
	h.logger.Info("Data exported via HTTP",
		util.String("user_id", userID),
		util.Int("events", payload.TotalEvents),
		util.Duration("duration", time.Since(startTime)))
}

// DeleteData erases a user's behavioral data. The confirmation query
// parameter must carry the exact token or nothing is touched.
func (h *EngineHandler) DeleteData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	confirmation := r.URL.Query().Get("confirmation")

	result, err := h.privacyService.Delete(ctx, userID, confirmation)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to delete data")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Data deleted"))
	h.logger.Info("User data deleted via HTTP", util.String("user_id", userID))
}

// respondWithJSON sends a JSON response.
func (h *EngineHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response.
func (h *EngineHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an
// error.
func (h *EngineHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidConfirmation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRecoveryCodeMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrRecoveryNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
