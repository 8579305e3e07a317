package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/aquicore-go/internal/config"
)

const (
	testUsername = "ops@example.com"
	testPassword = "hunter2"
	testCode     = "good-code"
)

// testServer is a minimal Aquicore API: a login endpoint accepting one
// account or one authorization code, a refresh endpoint, /users/me, and an
// /echo endpoint that reports what it received.
type testServer struct {
	srv *httptest.Server

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	apiCalls     atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/session/login", func(w http.ResponseWriter, r *http.Request) {
		ts.loginCalls.Add(1)

		body := decodeParams(r)

		passwordOK := body["user"] == testUsername && body["password"] == testPassword
		codeOK := body["grant_type"] == "authorization_code" && body["code"] == testCode

		if !passwordOK && !codeOK {
			respond(w, http.StatusUnauthorized, `{"error":{"code":401,"message":"Unauthorized"}}`)
			return
		}

		respond(w, http.StatusOK, `{"authToken":"access-1","refresh_token":"refresh-1"}`)
	})

	mux.HandleFunc("/session/refresh", func(w http.ResponseWriter, r *http.Request) {
		ts.refreshCalls.Add(1)

		if decodeParams(r)["refresh_token"] == "" {
			respond(w, http.StatusUnauthorized, `{"error":{"code":401,"message":"Unauthorized"}}`)
			return
		}

		respond(w, http.StatusOK, `{"authToken":"access-2","refresh_token":"refresh-2"}`)
	})

	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		ts.apiCalls.Add(1)

		switch decodeParams(r)["authToken"] {
		case "access-1", "access-2":
			respond(w, http.StatusOK, `{"status":"ok","body":{"id":"u1","email":"ops@example.com"}}`)
		default:
			respond(w, http.StatusForbidden, `{"error":{"code":3,"message":"Access token expired"}}`)
		}
	})

	mux.HandleFunc("/api/v1/echo", func(w http.ResponseWriter, r *http.Request) {
		ts.apiCalls.Add(1)

		params := decodeParams(r)
		_, authed := params["authToken"]
		delete(params, "authToken")

		out, err := json.Marshal(map[string]any{
			"status": "ok",
			"body":   map[string]any{"method": r.Method, "authed": authed, "params": params},
		})
		if err != nil {
			respond(w, http.StatusInternalServerError, `{"error":{"code":500}}`)
			return
		}

		respond(w, http.StatusOK, string(out))
	})

	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.srv.Close)

	return ts
}

// decodeParams returns the request parameters from the query string (GET) or
// the JSON body (other methods).
func decodeParams(r *http.Request) map[string]string {
	params := make(map[string]string)

	if r.Method == http.MethodGet {
		for k, v := range r.URL.Query() {
			params[k] = v[0]
		}

		return params
	}

	_ = json.NewDecoder(r.Body).Decode(&params)

	return params
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// cliEnv isolates a CLI run: temp data dir, no inherited AQUICORE_*
// variables, and a config file whose default profile points at ts.
type cliEnv struct {
	configPath string
	dataDir    string
}

func newCLIEnv(t *testing.T, ts *testServer, extra string) *cliEnv {
	t.Helper()

	for _, name := range []string{
		config.EnvConfig, config.EnvProfile, config.EnvUsername,
		config.EnvPassword, config.EnvAccessToken, config.EnvRefreshToken,
	} {
		t.Setenv(name, "")
	}

	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	content := `
[logging]
log_level = "error"

[profile.default]
base_uri = "` + ts.srv.URL + `/api/v1"
auth_uri = "` + ts.srv.URL + `/session/login"
refresh_uri = "` + ts.srv.URL + `/session/refresh"
username = "` + testUsername + `"
` + extra

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return &cliEnv{configPath: path, dataDir: dataDir}
}

// run executes the CLI with args and returns stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath, "--quiet"}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func (e *cliEnv) tokenFile() string {
	return filepath.Join(e.dataDir, "aquicore-go", "tokens", "default.json")
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvPassword, testPassword)

	_, err := env.run(t, "", "login")
	require.NoError(t, err)
	assert.FileExists(t, env.tokenFile())
	assert.Equal(t, int32(1), ts.loginCalls.Load())

	// The password is only needed for login; later runs use stored tokens.
	t.Setenv(config.EnvPassword, "")

	out, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","email":"ops@example.com"}`, out)
	assert.Equal(t, int32(1), ts.loginCalls.Load())

	_, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.NoFileExists(t, env.tokenFile())

	_, err = env.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_LoginReadsPasswordFromStdin(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	_, err := env.run(t, testPassword+"\n", "login")
	require.NoError(t, err)
	assert.FileExists(t, env.tokenFile())
}

func TestCLI_LoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvPassword, "wrong")

	_, err := env.run(t, "", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.NoFileExists(t, env.tokenFile())
}

func TestCLI_LoginRequiresUsername(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	_, err := env.run(t, "", "login", "--username", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no username configured")
	assert.Equal(t, int32(0), ts.loginCalls.Load())
}

func TestCLI_LoginWithCode(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	_, err := env.run(t, "", "login", "--code", testCode)
	require.NoError(t, err)
	assert.FileExists(t, env.tokenFile())

	out, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"u1"`)
}

func TestCLI_ExpiredTokenRefreshesAndPersists(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvAccessToken, "stale")
	t.Setenv(config.EnvRefreshToken, "refresh-0")

	out, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"u1"`)
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Equal(t, int32(2), ts.apiCalls.Load())

	// The refreshed pair was written through the observer.
	t.Setenv(config.EnvAccessToken, "")
	t.Setenv(config.EnvRefreshToken, "")

	out, err = env.run(t, "", "token")
	require.NoError(t, err)
	assert.Contains(t, out, "access... (8 chars)")
	assert.Contains(t, out, "refres... (9 chars)")
	assert.NotContains(t, out, "access-2")
}

func TestCLI_StoredRefreshTokenOnly(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvRefreshToken, "refresh-0")

	out, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"u1"`)
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Equal(t, int32(1), ts.apiCalls.Load())
}

func TestCLI_APIGetQueryParams(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvAccessToken, "access-1")

	out, err := env.run(t, "", "api", "/echo", "-d", "from=2026-01-01", "-d", "limit:=20")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","body":{"method":"GET","authed":true,
		"params":{"from":"2026-01-01","limit":"20"}}}`, out)
}

func TestCLI_APIPostUnwrap(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvAccessToken, "access-1")

	out, err := env.run(t, "", "api", "-X", "post", "--unwrap", "/echo", "-d", "name=lobby", "-d", "threshold:=24.5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"POST","authed":true,"params":{"name":"lobby","threshold":"24.5"}}`, out)
}

func TestCLI_APINoAuth(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	out, err := env.run(t, "", "api", "--no-auth", "--raw", "/echo")
	require.NoError(t, err)
	assert.Equal(t, `{"body":{"authed":false,"method":"GET","params":{}},"status":"ok"}`+"\n", out)
	assert.Equal(t, int32(0), ts.loginCalls.Load())
}

func TestCLI_APIRequiresLogin(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	_, err := env.run(t, "", "api", "/echo")
	require.ErrorIs(t, err, errNotLoggedIn)
	assert.Equal(t, int32(0), ts.apiCalls.Load())
}

func TestCLI_APIBadParam(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvAccessToken, "access-1")

	_, err := env.run(t, "", "api", "/echo", "-d", "limit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
	assert.Equal(t, int32(0), ts.apiCalls.Load())
}

func TestCLI_TokenNotLoggedIn(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	out, err := env.run(t, "", "token")
	require.NoError(t, err)
	assert.Contains(t, out, "not logged in")
	assert.Contains(t, out, "default")
}

func TestCLI_SQLiteTokenStore(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, `token_store = "sqlite"`+"\n")
	t.Setenv(config.EnvPassword, testPassword)

	_, err := env.run(t, "", "login")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(env.dataDir, "aquicore-go", "tokens.db"))

	t.Setenv(config.EnvPassword, "")

	out, err := env.run(t, "", "token")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, testUsername)

	_, err = env.run(t, "", "logout")
	require.NoError(t, err)

	out, err = env.run(t, "", "token")
	require.NoError(t, err)
	assert.Contains(t, out, "not logged in")
}

func TestCLI_ConfigShow(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")
	t.Setenv(config.EnvPassword, testPassword)

	out, err := env.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, ts.srv.URL+"/api/v1")
	assert.Contains(t, out, "password      = (set)")
	assert.NotContains(t, out, testPassword)
}

func TestCLI_UnknownProfile(t *testing.T) {
	ts := newTestServer(t)
	env := newCLIEnv(t, ts, "")

	_, err := env.run(t, "", "--profile", "nope", "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `profile "nope" not found`)
}
