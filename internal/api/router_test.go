package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/database"
	"github.com/isdelr/nip-auth/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Errors  map[string]any  `json:"errors"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	users, err := services.NewUserService(db, auth.NewBcryptHasher(bcrypt.MinCost))
	require.NoError(t, err)
	tokens := services.NewTokenService(db)
	events := services.NewEventService(db)
	authService := services.NewAuthService(users, tokens, events)

	srv := httptest.NewServer(NewRouter(authService, tokens, events, db, []string{"http://localhost:3000"}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func register(t *testing.T, srv *httptest.Server, nip string) {
	t.Helper()
	status, env := call(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Dewi Lestari", "prodi": "Teknik Informatika", "nip": nip, "password": "secret",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
}

func login(t *testing.T, srv *httptest.Server, nip, password, device string) (int, envelope) {
	t.Helper()
	return call(t, srv, http.MethodPost, "/auth/login", "", map[string]string{
		"nip": nip, "password": password, "device_name": device,
	})
}

func tokenFrom(t *testing.T, env envelope) string {
	t.Helper()
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRegister_SuccessOmitsHash(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Dewi Lestari", "prodi": "Teknik Informatika", "nip": "123", "password": "secret",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Message)

	var user map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "123", user["nip"])
	assert.Equal(t, "Dewi Lestari", user["name"])
	assert.Equal(t, "Teknik Informatika", user["prodi"])
	assert.NotEmpty(t, user["id"])
	for key := range user {
		assert.NotContains(t, strings.ToLower(key), "password")
	}
}

func TestRegister_DuplicateNIP(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "123")

	status, env := call(t, srv, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Another", "prodi": "X", "nip": "123", "password": "other",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "failed", env.Message)
	assert.Equal(t, "nip already registered", env.Error)
}

func TestRegister_Concurrent(t *testing.T) {
	srv := newTestServer(t)

	post := func(nip string) (int, error) {
		body := fmt.Sprintf(`{"name":"User","prodi":"Prodi","nip":%q,"password":"secret"}`, nip)
		resp, err := srv.Client().Post(srv.URL+"/auth/register", "application/json", strings.NewReader(body))
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		return resp.StatusCode, nil
	}
	run := func(n int, nipFor func(int) string) map[int]int {
		statuses := make([]int, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				statuses[i], errs[i] = post(nipFor(i))
			}(i)
		}
		wg.Wait()

		counts := map[int]int{}
		for i := range statuses {
			require.NoError(t, errs[i])
			counts[statuses[i]]++
		}
		return counts
	}

	distinct := run(30, func(i int) string { return fmt.Sprintf("nip%d", i) })
	assert.Equal(t, map[int]int{http.StatusOK: 30}, distinct)

	same := run(15, func(int) string { return "777" })
	assert.Equal(t, map[int]int{http.StatusOK: 1, http.StatusConflict: 14}, same)
}

func TestRegister_MissingFields(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/auth/register", "", map[string]string{"nip": "123"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "failed", env.Message)
	assert.Contains(t, env.Errors, "name")
	assert.Contains(t, env.Errors, "prodi")
	assert.Contains(t, env.Errors, "password")
}

func TestRegister_EmptyAndMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Len(t, env.Errors, 4)

	resp, err := srv.Client().Post(srv.URL+"/auth/register", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_FormEncoded(t *testing.T) {
	srv := newTestServer(t)

	form := "name=Rina&prodi=Matematika&nip=777&password=secret"
	resp, err := srv.Client().Post(srv.URL+"/api/auth/register", "application/x-www-form-urlencoded", strings.NewReader(form))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ := login(t, srv, "777", "secret", "phone")
	assert.Equal(t, http.StatusOK, status)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "123")

	status, env := login(t, srv, "123", "secret", "phone")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Message)
	tokenFrom(t, env)

	status, env = login(t, srv, "123", "wrong", "phone")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", env.Error)

	status, env = login(t, srv, "999", "secret", "phone")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", env.Error)
}

func TestLogin_DeviceNameRequired(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "123")

	status, env := login(t, srv, "123", "secret", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "device name required", env.Error)

	// credentials are checked first
	status, env = login(t, srv, "123", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", env.Error)
}

func TestLogin_MissingCredentials(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/auth/login", "", map[string]string{"device_name": "phone"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Errors, "nip")
	assert.Contains(t, env.Errors, "password")
}

func TestMeAndLogout(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "123")

	_, env := login(t, srv, "123", "secret", "phone")
	phone := tokenFrom(t, env)
	_, env = login(t, srv, "123", "secret", "laptop")
	laptop := tokenFrom(t, env)

	status, env := call(t, srv, http.MethodGet, "/auth/me", phone, nil)
	require.Equal(t, http.StatusOK, status)
	var me map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "123", me["nip"])
	assert.Equal(t, "Dewi Lestari", me["name"])

	status, env = call(t, srv, http.MethodPost, "/auth/logout", phone, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Message)
	assert.Equal(t, "null", string(env.Data))

	status, env = call(t, srv, http.MethodGet, "/auth/me", phone, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", env.Error)

	// second logout with the same token is an error, not a crash
	status, env = call(t, srv, http.MethodPost, "/auth/logout", phone, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "failed", env.Message)

	// other devices stay signed in
	status, _ = call(t, srv, http.MethodGet, "/api/auth/me", laptop, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestEvents_OwnActivityOnly(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "123")
	register(t, srv, "456")

	_, env := login(t, srv, "123", "secret", "phone")
	token := tokenFrom(t, env)
	_, _ = login(t, srv, "456", "wrong", "phone")

	status, env := call(t, srv, http.MethodGet, "/auth/events?limit=10", token, nil)
	require.Equal(t, http.StatusOK, status)

	var events []struct {
		Type   string `json:"type"`
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &events))
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []string{services.EventRegister, services.EventLogin}, types)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct{ method, path, token string }{
		{http.MethodGet, "/auth/me", ""},
		{http.MethodPost, "/auth/logout", ""},
		{http.MethodGet, "/auth/events", ""},
		{http.MethodGet, "/auth/me", "1|not-a-real-token"},
	} {
		status, env := call(t, srv, tc.method, tc.path, tc.token, nil)
		assert.Equal(t, http.StatusUnauthorized, status, tc.path)
		assert.Equal(t, "unauthenticated", env.Error)
	}
}

func TestHealthzAndNotFound(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))

	status, env = call(t, srv, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "failed", env.Message)

	status, _ = call(t, srv, http.MethodGet, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestRecoverer_WritesEnvelope(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"failed","data":null,"error":"internal server error"}`, rec.Body.String())
}
