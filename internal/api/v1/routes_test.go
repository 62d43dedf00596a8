package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/AntonAks/TaskFromTal/internal/api/v1"
	"github.com/AntonAks/TaskFromTal/internal/auth"
	"github.com/AntonAks/TaskFromTal/internal/store"
)

func ptr(s string) *string { return &s }

func newUUID() uuid.UUID { return uuid.New() }

type fakeStudies struct {
	byID    map[string]*store.Study
	listErr error
}

func newFakeStudies() *fakeStudies {
	return &fakeStudies{byID: make(map[string]*store.Study)}
}

func (f *fakeStudies) Create(_ context.Context, study store.Study) (*store.Study, error) {
	if _, ok := f.byID[study.ID]; ok {
		return nil, store.ErrStudyAlreadyExists
	}
	now := time.Now().UTC()
	study.CreatedAt = now
	study.UpdatedAt = now
	f.byID[study.ID] = &study
	return &study, nil
}

func (f *fakeStudies) Get(_ context.Context, id string) (*store.Study, error) {
	study, ok := f.byID[id]
	if !ok {
		return nil, store.ErrStudyNotFound
	}
	return study, nil
}

func (f *fakeStudies) List(context.Context, store.StudyFilter) ([]store.Study, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var studies []store.Study
	for _, study := range f.byID {
		studies = append(studies, *study)
	}
	return studies, nil
}

func (f *fakeStudies) Update(_ context.Context, id string, upd store.StudyUpdate) (*store.Study, error) {
	study, ok := f.byID[id]
	if !ok {
		return nil, store.ErrStudyNotFound
	}
	if upd.Title != nil {
		study.Title = upd.Title
	}
	if upd.OrganizationName != nil {
		study.OrganizationName = upd.OrganizationName
	}
	if upd.OrganizationType != nil {
		study.OrganizationType = upd.OrganizationType
	}
	study.UpdatedAt = time.Now().UTC()
	return study, nil
}

func (f *fakeStudies) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return store.ErrStudyNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeStats struct {
	orgStats  []store.OrganizationStats
	typeStats []store.OrganizationTypeStats
	err       error
}

func (f *fakeStats) ListOrganizationStats(context.Context, store.StatsFilter) ([]store.OrganizationStats, error) {
	return f.orgStats, f.err
}

func (f *fakeStats) ListOrganizationTypeStats(context.Context, store.StatsFilter) ([]store.OrganizationTypeStats, error) {
	return f.typeStats, f.err
}

type fakeUsers struct {
	byName map[string]*store.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byName: make(map[string]*store.User)}
}

func (f *fakeUsers) Create(_ context.Context, username, passwordHash string, isAdmin bool) (*store.User, error) {
	if _, ok := f.byName[username]; ok {
		return nil, store.ErrUserAlreadyExists
	}
	user := &store.User{
		ID:           newUUID(),
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	f.byName[username] = user
	return user, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*store.User, error) {
	user, ok := f.byName[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

type testEnv struct {
	server  *httptest.Server
	studies *fakeStudies
	stats   *fakeStats
	users   *fakeUsers
	issuer  *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		studies: newFakeStudies(),
		stats:   &fakeStats{},
		users:   newFakeUsers(),
		issuer:  issuer,
	}

	routes := v1.NewRoutes(env.studies, env.stats, env.users, issuer)
	env.server = httptest.NewServer(v1.Router(routes))
	t.Cleanup(env.server.Close)

	return env
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.issuer.Issue(auth.Identity{UserID: newUUID(), Username: "tester"})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStudiesCRUD(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.token(t)

	// Create
	resp := env.do(t, http.MethodPost, "/studies", token, v1.CreateStudyRequest{
		Title:            ptr("A study"),
		OrganizationName: ptr("Acme Health"),
		OrganizationType: ptr("INDUSTRY"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[v1.StudyResponse](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "A study", *created.Title)

	// Get
	resp = env.do(t, http.MethodGet, "/studies/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[v1.StudyResponse](t, resp)
	assert.Equal(t, created.ID, got.ID)

	// List
	resp = env.do(t, http.MethodGet, "/studies?title=study", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]v1.StudyResponse](t, resp)
	require.Len(t, list, 1)

	// Update
	resp = env.do(t, http.MethodPut, "/studies/"+created.ID, token, v1.UpdateStudyRequest{
		Title: ptr("A renamed study"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[v1.StudyResponse](t, resp)
	assert.Equal(t, "A renamed study", *updated.Title)
	assert.Equal(t, "Acme Health", *updated.OrganizationName)

	// Delete
	resp = env.do(t, http.MethodDelete, "/studies/"+created.ID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/studies/"+created.ID, "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStudies_MutationsRequireAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/studies"},
		{http.MethodPut, "/studies/some-id"},
		{http.MethodDelete, "/studies/some-id"},
	}

	for _, tt := range tests {
		resp := env.do(t, tt.method, tt.path, "", v1.CreateStudyRequest{})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tt.method, tt.path)
	}
}

func TestStudies_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.token(t)

	resp := env.do(t, http.MethodGet, "/studies/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/studies/missing", token, v1.UpdateStudyRequest{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/studies/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStudies_ListFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.studies.listErr = errors.New("database unavailable")

	resp := env.do(t, http.MethodGet, "/studies", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAnalysisEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.stats.orgStats = []store.OrganizationStats{
		{OrganizationName: "Acme Health", Quantity: 12},
	}
	env.stats.typeStats = []store.OrganizationTypeStats{
		{OrganizationType: "INDUSTRY", QuantityStudies: 12, QuantityOrganizations: 3},
	}

	resp := env.do(t, http.MethodGet, "/analysis/studies_by_org", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	orgs := decode[[]v1.OrganizationStatsResponse](t, resp)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Acme Health", orgs[0].OrganizationName)
	assert.Equal(t, int64(12), orgs[0].Quantity)

	resp = env.do(t, http.MethodGet, "/analysis/org_types", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	types := decode[[]v1.OrganizationTypeStatsResponse](t, resp)
	require.Len(t, types, 1)
	assert.Equal(t, "INDUSTRY", types[0].OrganizationType)
	assert.Equal(t, int64(3), types[0].QuantityOrganizations)
}

func TestAnalysisEndpoints_EmptyResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/analysis/studies_by_org", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	orgs := decode[[]v1.OrganizationStatsResponse](t, resp)
	assert.Empty(t, orgs)
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// Register
	resp := env.do(t, http.MethodPost, "/auth/register", "", v1.RegisterRequest{
		Username: "alice",
		Password: "hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := decode[v1.UserResponse](t, resp)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.ID)

	// Duplicate username
	resp = env.do(t, http.MethodPost, "/auth/register", "", v1.RegisterRequest{
		Username: "alice",
		Password: "other",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Login with wrong password
	resp = env.do(t, http.MethodPost, "/auth/login", "", v1.LoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Login
	resp = env.do(t, http.MethodPost, "/auth/login", "", v1.LoginRequest{
		Username: "alice",
		Password: "hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tokenResp := decode[v1.TokenResponse](t, resp)
	require.NotEmpty(t, tokenResp.AccessToken)
	assert.Equal(t, "bearer", tokenResp.TokenType)

	// Token works against a protected route
	resp = env.do(t, http.MethodPost, "/studies", tokenResp.AccessToken, v1.CreateStudyRequest{
		Title: ptr("created by alice"),
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/register", "", v1.RegisterRequest{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/register", "", v1.RegisterRequest{Password: "hunter2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_UnknownUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/login", "", v1.LoginRequest{
		Username: "nobody",
		Password: "whatever",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
