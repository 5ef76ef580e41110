package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"riskline/internal/catalog"
	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/domain"
	"riskline/internal/engine"
	"riskline/internal/migrate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type testServer struct {
	URL    string
	client *http.Client
	engine engine.Engine
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	e := engine.New(conn, config.Default(), catalog.Default(), zaptest.NewLogger(t))
	e.Now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String(), client: client, engine: e}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	body := decode[healthBody](t, data)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.SchemaVersion)
	assert.Equal(t, catalog.Default().Len(), body.Issues)
}

func TestTemplates(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/templates", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	items := decode[[]TemplateResponse](t, data)
	require.Len(t, items, len(config.Default().Templates))
	for _, it := range items {
		assert.NotEmpty(t, it.Key)
		assert.Positive(t, it.TotalDays)
	}
}

func TestCreateRunAndFetch(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	seed := int64(7)
	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/runs", RunRequest{
		Seed:             &seed,
		DetectionEnabled: true,
		Quality:          "excellent",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	created := decode[RunResponse](t, data)
	assert.Equal(t, "cheongdam", created.Run.Template)
	assert.Equal(t, "excellent", created.Run.QualityLevel)
	assert.Equal(t, "2025-03-01T09:00:00Z", created.Run.CreatedAt)
	assert.Equal(t, "detection", created.Benchmark.Regime)
	assert.Len(t, created.Impacts, created.Run.Metrics.IssuesCount)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/runs/"+created.Run.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, created.Run, decode[domain.Run](t, data))

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/runs/"+created.Run.ID+"/impacts", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	impacts := decode[impactList](t, data)
	assert.Equal(t, created.Impacts, impacts.Items)
}

func TestRunErrors(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/runs", RunRequest{Template: "castle"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
	env := decode[apiError](t, data)
	assert.Equal(t, "bad_request", env.Body.Code)
	assert.Contains(t, env.Body.Message, "castle")

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/runs/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, string(data))
	assert.Equal(t, "not_found", decode[apiError](t, data).Body.Code)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/runs/missing/impacts", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, string(data))

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/runs?cursor=broken", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
}

func TestListRunsPagination(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	for seed := int64(1); seed <= 3; seed++ {
		s := seed
		resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/runs", RunRequest{Seed: &s}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	}

	seen := map[string]bool{}
	url := ts.URL + "/v0/runs?limit=2"
	resp, data := doJSON(t, ts.client, http.MethodGet, url, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	page := decode[paginatedRuns](t, data)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	for _, r := range page.Items {
		seen[r.ID] = true
	}

	resp, data = doJSON(t, ts.client, http.MethodGet, url+"&cursor="+page.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	page = decode[paginatedRuns](t, data)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)
	assert.False(t, seen[page.Items[0].ID])

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/runs?detection=true", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Empty(t, decode[paginatedRuns](t, data).Items)
}

func TestComparisonRecordsEvents(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/comparisons", ComparisonRequest{Quality: "good"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	cmp := decode[ComparisonResponse](t, data)
	assert.False(t, cmp.Traditional.DetectionEnabled)
	assert.True(t, cmp.Detection.DetectionEnabled)
	assert.Equal(t, cmp.Traditional.Seed, cmp.Detection.Seed)
	assert.InDelta(t, cmp.Traditional.Metrics.DelayDays-cmp.Detection.Metrics.DelayDays, cmp.DelayDaysReduced, 1e-9)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/events?entity_kind=comparison", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	evts := decode[paginatedEvents](t, data)
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "comparison.recorded", evts.Items[0].Type)
	assert.Equal(t, cmp.Detection.ID, evts.Items[0].Payload["detection_run_id"])

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/events?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	evts = decode[paginatedEvents](t, data)
	require.Len(t, evts.Items, 1)
	require.NotEmpty(t, evts.NextCursor)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/events?cursor="+evts.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Len(t, decode[paginatedEvents](t, data).Items, 2)
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"runs:write"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	ts := newTestServer(t, AuthConfig{JWTSecret: secret})

	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Contains(t, string(data), "bearerAuth")

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/templates", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(data))
	assert.Equal(t, "unauthorized", decode[apiError](t, data).Body.Code)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/templates", nil, map[string]string{
		"Authorization": "Bearer " + signToken(t, "wrong", "alice"),
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", decode[apiError](t, data).Body.Code)

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/templates", nil, map[string]string{
		"Authorization": "Bearer " + signToken(t, secret, "alice"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
}

func TestAuthenticateJWTRequiresSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{}).SignedString([]byte("s"))
	require.NoError(t, err)
	_, err = authenticateJWT(token, "s")
	require.Error(t, err)

	p, err := authenticateJWT(signToken(t, "s", "bob"), "s")
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Subject)
	assert.Equal(t, []string{"runs:write"}, p.Scopes)
}

func TestCursorHelpers(t *testing.T) {
	ts, id, err := parseCompositeCursor(composeCursor("2025-01-01T00:00:00Z", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T00:00:00Z", ts)
	assert.Equal(t, "abc", id)

	_, _, err = parseCompositeCursor("nope")
	assert.Error(t, err)
	assert.Equal(t, 50, normalizeLimit(0))
	assert.Equal(t, 200, normalizeLimit(1000))
	assert.Equal(t, 10, normalizeLimit(10))
}
