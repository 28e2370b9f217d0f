package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/trackback/matchengine/internal/domain"
	domitem "github.com/trackback/matchengine/internal/domain/item"
	dommatch "github.com/trackback/matchengine/internal/domain/match"
	healthuc "github.com/trackback/matchengine/internal/usecase/health"
	itemuc "github.com/trackback/matchengine/internal/usecase/item"
	matchuc "github.com/trackback/matchengine/internal/usecase/match"
)

// defaultSearchWindowDays bounds category search when the caller does
// not pass an explicit window.
const defaultSearchWindowDays = 90

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the matching engine over HTTP.
type Server struct {
	items         *itemuc.Service
	matches       *matchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	items *itemuc.Service,
	matches *matchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		items:   items,
		matches: matches,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		invalidTransitionHandler,
		sentinelHandler(domain.ErrItemNotFound, http.StatusNotFound, codeItemNotFound),
		sentinelHandler(domain.ErrMatchNotFound, http.StatusNotFound, codeMatchNotFound),
		sentinelHandler(domain.ErrItemArchived, http.StatusConflict, codeItemArchived),
		sentinelHandler(domain.ErrKindMismatch, http.StatusBadRequest, codeKindMismatch),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
	}
	return s
}

// Routes mounts all API routes onto r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", s.CreateItem)
		r.Get("/", s.ListItems)
		r.Get("/nearby", s.NearbyItems)
		r.Route("/{itemID}", func(r chi.Router) {
			r.Get("/", s.GetItem)
			r.Patch("/", s.PatchItem)
			r.Post("/archive", s.ArchiveItem)
			r.Get("/matches", s.ListItemMatches)
		})
	})
	r.Route("/matches", func(r chi.Router) {
		r.Get("/", s.ListMatches)
		r.Route("/{matchID}", func(r chi.Router) {
			r.Get("/", s.GetMatch)
			r.Post("/confirm", s.ConfirmMatch)
			r.Post("/reject", s.RejectMatch)
		})
	})
	r.Get("/stats", s.GetStats)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// CreateItem handles POST /items.
func (s *Server) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	it, err := s.items.Create(r.Context(), draftFromRequest(req))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, itemToResponse(&it))
}

// GetItem handles GET /items/{itemID}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.items.Get(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(&it))
}

// PatchItem handles PATCH /items/{itemID}.
func (s *Server) PatchItem(w http.ResponseWriter, r *http.Request) {
	var req patchItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "lat and lon must be set together")
		return
	}

	it, err := s.items.Update(r.Context(), chi.URLParam(r, "itemID"), updateFromRequest(req))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, itemToResponse(&it))
}

// ArchiveItem handles POST /items/{itemID}/archive.
func (s *Server) ArchiveItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.items.Archive(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(&it))
}

// ListItems handles GET /items?reporter_id= and
// GET /items?kind=&category=[&days=].
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if reporterID := q.Get("reporter_id"); reporterID != "" {
		items, err := s.items.ListByReporter(r.Context(), reporterID)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemsToResponse(items))
		return
	}

	kind, category := q.Get("kind"), q.Get("category")
	if kind == "" || category == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"either reporter_id or both kind and category query parameters are required")
		return
	}

	days := defaultSearchWindowDays
	if raw := q.Get("days"); raw != "" {
		var err error
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "days must be a positive integer")
			return
		}
	}

	until := time.Now().UTC()
	items, err := s.items.Search(r.Context(), domitem.Kind(kind), category, until.AddDate(0, 0, -days), until)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsToResponse(items))
}

// NearbyItems handles GET /items/nearby?lat=&lon=&radius_m=.
func (s *Server) NearbyItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "lat and lon query parameters are required")
		return
	}

	radiusM := 1000.0
	if raw := q.Get("radius_m"); raw != "" {
		radiusM, err1 = strconv.ParseFloat(raw, 64)
		if err1 != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "radius_m must be a number")
			return
		}
	}

	items, err := s.items.Nearby(r.Context(), lat, lon, radiusM)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsToResponse(items))
}

// ListItemMatches handles GET /items/{itemID}/matches.
func (s *Server) ListItemMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.matches.ListForItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesToResponse(matches))
}

// ListMatches handles GET /matches?status=.
func (s *Server) ListMatches(w http.ResponseWriter, r *http.Request) {
	var status dommatch.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = dommatch.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown status "+strconv.Quote(raw))
			return
		}
	}

	matches, err := s.matches.List(r.Context(), status)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesToResponse(matches))
}

// GetMatch handles GET /matches/{matchID}.
func (s *Server) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.matches.Get(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchToResponse(&m))
}

// ConfirmMatch handles POST /matches/{matchID}/confirm.
func (s *Server) ConfirmMatch(w http.ResponseWriter, r *http.Request) {
	s.transitionMatch(w, r, s.matches.Confirm)
}

// RejectMatch handles POST /matches/{matchID}/reject.
func (s *Server) RejectMatch(w http.ResponseWriter, r *http.Request) {
	s.transitionMatch(w, r, s.matches.Reject)
}

func (s *Server) transitionMatch(
	w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, matchID, verifierID string) (dommatch.Match, error),
) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.VerifierID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "verifier_id is required")
		return
	}

	m, err := apply(r.Context(), chi.URLParam(r, "matchID"), req.VerifierID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchToResponse(&m))
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	matchCounts, err := s.matches.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	itemCounts, err := s.items.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make(map[string]int, len(itemCounts))
	for st, n := range itemCounts {
		items[string(st)] = n
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Items: items,
		Matches: matchStats{
			Pending:   matchCounts[dommatch.StatusPending],
			Confirmed: matchCounts[dommatch.StatusConfirmed],
			Rejected:  matchCounts[dommatch.StatusRejected],
		},
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrItemNotFound,
		domain.ErrMatchNotFound,
		domain.ErrInvalidStateTransition,
		domain.ErrItemArchived,
		domain.ErrKindMismatch,
		domain.ErrValidation,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// invalidTransitionHandler handles ErrInvalidStateTransition with from/to detail.
func invalidTransitionHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		return false
	}
	var ite *domain.InvalidTransitionError
	if errors.As(err, &ite) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":    codeInvalidStateTransition,
			"message": msg,
			"from":    ite.From,
			"to":      ite.To,
		})
		return true
	}
	writeError(w, http.StatusConflict, codeInvalidStateTransition, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
