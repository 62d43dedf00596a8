package v1

import (
	"time"

	"github.com/AntonAks/TaskFromTal/internal/store"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StudyResponse represents a single study
type StudyResponse struct {
	ID               string    `json:"id"`
	Title            *string   `json:"title"`
	OrganizationName *string   `json:"organization_name"`
	OrganizationType *string   `json:"organization_type"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toStudyResponse(study *store.Study) StudyResponse {
	return StudyResponse{
		ID:               study.ID,
		Title:            study.Title,
		OrganizationName: study.OrganizationName,
		OrganizationType: study.OrganizationType,
		CreatedAt:        study.CreatedAt,
		UpdatedAt:        study.UpdatedAt,
	}
}

// CreateStudyRequest is the payload for creating a study through the API.
// The id is generated server-side.
type CreateStudyRequest struct {
	Title            *string `json:"title"`
	OrganizationName *string `json:"organization_name"`
	OrganizationType *string `json:"organization_type"`
}

// UpdateStudyRequest is the payload for updating a study. Absent fields
// keep their current values.
type UpdateStudyRequest struct {
	Title            *string `json:"title"`
	OrganizationName *string `json:"organization_name"`
	OrganizationType *string `json:"organization_type"`
}

// OrganizationStatsResponse is one row of the per-organization statistics
type OrganizationStatsResponse struct {
	OrganizationName string `json:"organization_name"`
	Quantity         int64  `json:"quantity"`
}

// OrganizationTypeStatsResponse is one row of the per-type statistics
type OrganizationTypeStatsResponse struct {
	OrganizationType      string `json:"organization_type"`
	QuantityStudies       int64  `json:"quantity_studies"`
	QuantityOrganizations int64  `json:"quantity_organizations"`
}

// RegisterRequest is the payload for creating a user account
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// UserResponse represents a user account, without credentials
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginRequest is the payload for obtaining an access token
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued access token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
