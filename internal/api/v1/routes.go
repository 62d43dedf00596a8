// Package v1 provides the REST API handlers for the trials registry.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AntonAks/TaskFromTal/internal/auth"
	"github.com/AntonAks/TaskFromTal/internal/logger"
	"github.com/AntonAks/TaskFromTal/internal/store"
)

// StudyService is the study store surface used by the handlers
type StudyService interface {
	Create(ctx context.Context, study store.Study) (*store.Study, error)
	Get(ctx context.Context, id string) (*store.Study, error)
	List(ctx context.Context, filter store.StudyFilter) ([]store.Study, error)
	Update(ctx context.Context, id string, upd store.StudyUpdate) (*store.Study, error)
	Delete(ctx context.Context, id string) error
}

// StatsService is the analytics store surface used by the handlers
type StatsService interface {
	ListOrganizationStats(ctx context.Context, filter store.StatsFilter) ([]store.OrganizationStats, error)
	ListOrganizationTypeStats(ctx context.Context, filter store.StatsFilter) ([]store.OrganizationTypeStats, error)
}

// UserService is the user store surface used by the handlers
type UserService interface {
	Create(ctx context.Context, username, passwordHash string, isAdmin bool) (*store.User, error)
	GetByUsername(ctx context.Context, username string) (*store.User, error)
}

// ReadinessChecker reports whether a backing store can serve requests
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Routes defines the routes for the trials API with dependency injection
type Routes struct {
	studies StudyService
	stats   StatsService
	users   UserService
	issuer  *auth.TokenIssuer
}

// NewRoutes creates a new Routes instance with the provided services
func NewRoutes(studies StudyService, stats StatsService, users UserService, issuer *auth.TokenIssuer) *Routes {
	return &Routes{
		studies: studies,
		stats:   stats,
		users:   users,
		issuer:  issuer,
	}
}

// Router creates a new router for the trials API. Mutating study routes
// require a bearer token; reads are public.
func Router(routes *Routes) http.Handler {
	r := chi.NewRouter()

	r.Route("/studies", func(r chi.Router) {
		r.Get("/", routes.listStudies)
		r.Get("/{id}", routes.getStudy)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(routes.issuer))
			r.Post("/", routes.createStudy)
			r.Put("/{id}", routes.updateStudy)
			r.Delete("/{id}", routes.deleteStudy)
		})
	})

	r.Route("/analysis", func(r chi.Router) {
		r.Get("/studies_by_org", routes.listOrganizationStats)
		r.Get("/org_types", routes.listOrganizationTypeStats)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", routes.register)
		r.Post("/login", routes.login)
	})

	return r
}

// listStudies handles GET /api/studies
func (rr *Routes) listStudies(w http.ResponseWriter, r *http.Request) {
	filter := store.StudyFilter{
		Title:            r.URL.Query().Get("title"),
		OrganizationName: r.URL.Query().Get("organization"),
		Skip:             queryInt(r, "skip", 0),
		Limit:            queryInt(r, "limit", 0),
	}

	studies, err := rr.studies.List(r.Context(), filter)
	if err != nil {
		logger.Errorf("Failed to list studies: %v", err)
		rr.writeErrorResponse(w, "Failed to list studies", http.StatusInternalServerError)
		return
	}

	response := make([]StudyResponse, 0, len(studies))
	for i := range studies {
		response = append(response, toStudyResponse(&studies[i]))
	}
	rr.writeJSONResponse(w, http.StatusOK, response)
}

// getStudy handles GET /api/studies/{id}
func (rr *Routes) getStudy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	study, err := rr.studies.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrStudyNotFound) {
			rr.writeErrorResponse(w, "Study not found", http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to get study %s: %v", id, err)
		rr.writeErrorResponse(w, "Failed to get study", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, http.StatusOK, toStudyResponse(study))
}

// createStudy handles POST /api/studies
func (rr *Routes) createStudy(w http.ResponseWriter, r *http.Request) {
	var req CreateStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	study, err := rr.studies.Create(r.Context(), store.Study{
		ID:               uuid.NewString(),
		Title:            req.Title,
		OrganizationName: req.OrganizationName,
		OrganizationType: req.OrganizationType,
	})
	if err != nil {
		if errors.Is(err, store.ErrStudyAlreadyExists) {
			rr.writeErrorResponse(w, "Study already exists", http.StatusConflict)
			return
		}
		logger.Errorf("Failed to create study: %v", err)
		rr.writeErrorResponse(w, "Failed to create study", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, http.StatusCreated, toStudyResponse(study))
}

// updateStudy handles PUT /api/studies/{id}
func (rr *Routes) updateStudy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	study, err := rr.studies.Update(r.Context(), id, store.StudyUpdate{
		Title:            req.Title,
		OrganizationName: req.OrganizationName,
		OrganizationType: req.OrganizationType,
	})
	if err != nil {
		if errors.Is(err, store.ErrStudyNotFound) {
			rr.writeErrorResponse(w, "Study not found", http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to update study %s: %v", id, err)
		rr.writeErrorResponse(w, "Failed to update study", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, http.StatusOK, toStudyResponse(study))
}

// deleteStudy handles DELETE /api/studies/{id}
func (rr *Routes) deleteStudy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := rr.studies.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrStudyNotFound) {
			rr.writeErrorResponse(w, "Study not found", http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to delete study %s: %v", id, err)
		rr.writeErrorResponse(w, "Failed to delete study", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listOrganizationStats handles GET /api/analysis/studies_by_org
func (rr *Routes) listOrganizationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rr.stats.ListOrganizationStats(r.Context(), statsFilter(r))
	if err != nil {
		logger.Errorf("Failed to list organization statistics: %v", err)
		rr.writeErrorResponse(w, "Failed to list organization statistics", http.StatusInternalServerError)
		return
	}

	response := make([]OrganizationStatsResponse, 0, len(stats))
	for _, stat := range stats {
		response = append(response, OrganizationStatsResponse{
			OrganizationName: stat.OrganizationName,
			Quantity:         stat.Quantity,
		})
	}
	rr.writeJSONResponse(w, http.StatusOK, response)
}

// listOrganizationTypeStats handles GET /api/analysis/org_types
func (rr *Routes) listOrganizationTypeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rr.stats.ListOrganizationTypeStats(r.Context(), statsFilter(r))
	if err != nil {
		logger.Errorf("Failed to list organization type statistics: %v", err)
		rr.writeErrorResponse(w, "Failed to list organization type statistics", http.StatusInternalServerError)
		return
	}

	response := make([]OrganizationTypeStatsResponse, 0, len(stats))
	for _, stat := range stats {
		response = append(response, OrganizationTypeStatsResponse{
			OrganizationType:      stat.OrganizationType,
			QuantityStudies:       stat.QuantityStudies,
			QuantityOrganizations: stat.QuantityOrganizations,
		})
	}
	rr.writeJSONResponse(w, http.StatusOK, response)
}

// register handles POST /api/auth/register
func (rr *Routes) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		rr.writeErrorResponse(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Errorf("Failed to hash password: %v", err)
		rr.writeErrorResponse(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	user, err := rr.users.Create(r.Context(), req.Username, hash, req.IsAdmin)
	if err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			rr.writeErrorResponse(w, "Username already taken", http.StatusConflict)
			return
		}
		logger.Errorf("Failed to create user: %v", err)
		rr.writeErrorResponse(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, http.StatusCreated, UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		CreatedAt: user.CreatedAt,
	})
}

// login handles POST /api/auth/login
func (rr *Routes) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := rr.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			rr.writeErrorResponse(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.Errorf("Failed to look up user: %v", err)
		rr.writeErrorResponse(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		rr.writeErrorResponse(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := rr.issuer.Issue(auth.Identity{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	})
	if err != nil {
		logger.Errorf("Failed to issue token: %v", err)
		rr.writeErrorResponse(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// statsFilter extracts the shared filter parameters of the analysis routes
func statsFilter(r *http.Request) store.StatsFilter {
	return store.StatsFilter{
		Key:   r.URL.Query().Get("filter"),
		Skip:  queryInt(r, "skip", 0),
		Limit: queryInt(r, "limit", 0),
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}
