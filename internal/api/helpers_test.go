package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/models"
	"github.com/sprint-insights/backend/internal/processing"
	"github.com/sprint-insights/backend/internal/session"
	"github.com/sprint-insights/backend/internal/sprint"
	"github.com/sprint-insights/backend/internal/storage"
	"github.com/sprint-insights/backend/internal/testutil"
)

const testUser = "user-1"

// fakeVerifier accepts the tokens it knows and maps them to a subject.
type fakeVerifier map[string]string

func (v fakeVerifier) VerifyToken(token string) (*models.SupabaseClaims, error) {
	subject, ok := v[token]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Email:            subject + "@example.com",
	}, nil
}

// fakeAuthClient records calls and returns canned answers.
type fakeAuthClient struct {
	mu       sync.Mutex
	calls    []string
	session  *models.AuthSession
	user     *models.User
	err      error
	redirect string
}

func (f *fakeAuthClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAuthClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAuthClient) SignInWithPassword(_ context.Context, email, _ string) (*models.AuthSession, error) {
	f.record("password:" + email)
	return f.session, f.err
}

func (f *fakeAuthClient) SignInWithOTP(_ context.Context, email, redirectTo string) error {
	f.record("otp:" + email)
	f.redirect = redirectTo
	return f.err
}

func (f *fakeAuthClient) OAuthURL(provider, redirectTo string) string {
	return "https://auth.example.com/authorize?provider=" + provider + "&redirect_to=" + redirectTo
}

func (f *fakeAuthClient) RefreshSession(_ context.Context, token string) (*models.AuthSession, error) {
	f.record("refresh:" + token)
	return f.session, f.err
}

func (f *fakeAuthClient) GetUser(_ context.Context, token string) (*models.User, error) {
	f.record("user:" + token)
	return f.user, f.err
}

func (f *fakeAuthClient) SignOut(_ context.Context, token string) error {
	f.record("signout:" + token)
	return f.err
}

// testEnv wires the real services over an in-memory object store.
type testEnv struct {
	store    *testutil.MockStorage
	folders  *dashboard.Service
	sessions *session.Manager
	jobs     *processing.Manager
	activity *activity.MemoryRecorder
	auth     *fakeAuthClient
	handlers *Handlers
	echo     *echo.Echo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewMockStorage()
	folders := dashboard.NewService(store, zap.NewNop())
	sessions := session.NewManager(folders, zap.NewNop(), session.Options{})
	jobs := processing.NewManager(folders, store, func(key string) string {
		return storage.PublicURL("https://example.supabase.co", "sprint-data", key)
	}, zap.NewNop())
	t.Cleanup(func() {
		jobs.Close()
		sessions.Close()
	})

	stats, err := sprint.LoadStats()
	require.NoError(t, err)

	env := &testEnv{
		store:    store,
		folders:  folders,
		sessions: sessions,
		jobs:     jobs,
		activity: activity.NewMemoryRecorder(0),
		auth: &fakeAuthClient{
			session: &models.AuthSession{AccessToken: "access", RefreshToken: "refresh", User: models.User{ID: testUser}},
			user:    &models.User{ID: testUser, Email: "user-1@example.com"},
		},
	}
	env.handlers = NewHandlers(&Dependencies{
		Folders:             folders,
		AuthClient:          env.auth,
		Verifier:            fakeVerifier{"token-1": testUser, "token-2": "user-2"},
		Sessions:            sessions,
		Jobs:                jobs,
		Activity:            env.activity,
		Stats:               stats,
		Logger:              zap.NewNop(),
		Version:             "test",
		StorageProvider:     "memory",
		OAuthProviders:      []string{"github"},
		AuthRedirectURL:     "http://localhost:3000/auth/callback",
		AllowFolderDeletion: true,
		MaxZipSize:          testMaxZipSize,
	})

	e := echo.New()
	SetupMiddleware(e, MiddlewareOptions{}, zap.NewNop())
	RegisterRoutes(e, env.handlers)
	RegisterWebSocketRoutes(e, env.handlers)
	env.echo = e
	return env
}

// testMaxZipSize is the process-zip limit of the test router.
const testMaxZipSize = 4096

// addFile stores a CSV in the test user's folder.
func (env *testEnv) addFile(user, folder, name, content string) {
	env.store.AddObject(dashboard.ObjectKey(user, folder, name), []byte(content))
}

// do sends a request through the full router.
func (env *testEnv) do(method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

// newContext builds a handler context for a caller already authenticated as user.
func newContext(e *echo.Echo, req *http.Request, user string) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if user != "" {
		c.Set(ctxUserID, user)
		c.Set(ctxAccessToken, "token-of-"+user)
	}
	return c, rec
}

type formFile struct {
	name    string
	content string
}

func multipartBody(t *testing.T, field string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func requireAPIError(t *testing.T, err error, status int, code string) *APIError {
	t.Helper()
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	require.Equal(t, status, apiErr.Status, "message: %s, details: %s", apiErr.Message, apiErr.Details)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}
