package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStudyNotFound is returned when a study does not exist
	ErrStudyNotFound = errors.New("study not found")

	// ErrStudyAlreadyExists is returned on a duplicate study id
	ErrStudyAlreadyExists = errors.New("study already exists")

	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned on a duplicate username
	ErrUserAlreadyExists = errors.New("user already exists")
)

// Study is a single clinical study record. Only the id is guaranteed to be
// present; upstream payloads may omit everything else.
type Study struct {
	ID               string
	Title            *string
	OrganizationName *string
	OrganizationType *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StudyFilter narrows and pages List results. Empty filters match everything.
type StudyFilter struct {
	// Title filters with a case-insensitive substring match
	Title string

	// OrganizationName filters with a case-insensitive substring match
	OrganizationName string

	// Skip is the number of rows to skip
	Skip int

	// Limit caps the number of returned rows; zero applies DefaultListLimit
	Limit int
}

// StudyUpdate carries the mutable study fields. Nil pointers leave the
// current value untouched.
type StudyUpdate struct {
	Title            *string
	OrganizationName *string
	OrganizationType *string
}

// OrganizationStats counts studies per organization
type OrganizationStats struct {
	OrganizationName string
	Quantity         int64
}

// OrganizationTypeStats counts studies and distinct organizations per
// organization type
type OrganizationTypeStats struct {
	OrganizationType      string
	QuantityStudies       int64
	QuantityOrganizations int64
}

// StatsFilter narrows and pages statistics queries
type StatsFilter struct {
	// Key filters with a case-insensitive substring match on the natural key
	Key string

	// Skip is the number of rows to skip
	Skip int

	// Limit caps the number of returned rows; zero applies DefaultListLimit
	Limit int
}

// User is an account allowed to mutate studies through the API
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

const (
	// DefaultListLimit is the page size applied when a filter has no limit
	DefaultListLimit = 100

	// MaxListLimit caps requested page sizes
	MaxListLimit = 1000
)

// normalize applies the default and maximum page size
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
