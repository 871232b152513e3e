package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gibiertrace/internal/auth"
	"gibiertrace/internal/core"
	"gibiertrace/internal/obs"
	"gibiertrace/pkg/domain"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

var (
	examiner  = domain.Actor{ID: "u-exam", Roles: []domain.Role{domain.RoleExaminateurInitial}, Activated: true}
	collector = domain.Actor{ID: "u-coll", Roles: []domain.Role{domain.RoleCollecteurPro}, Activated: true}
)

type apiEnv struct {
	router  http.Handler
	auth    *auth.Authenticator
	metrics *obs.Metrics
}

func newAPI(t *testing.T, svc Service, opts Options) apiEnv {
	t.Helper()
	authn, err := auth.New("test-secret", auth.WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	if svc == nil {
		svc = core.NewInMemoryService(core.NewDefaultRulesEngine())
	}
	return apiEnv{router: NewRouter(NewHandler(svc, authn, nil), opts), auth: authn, metrics: opts.Metrics}
}

func (e apiEnv) token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	token, err := e.auth.Issue(actor, time.Hour)
	require.NoError(t, err)
	return token
}

type decoded struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (e apiEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4242"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	var env decoded
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func TestHealthzIsPublic(t *testing.T) {
	api := newAPI(t, nil, Options{})
	rr, env := api.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.OK)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresBearerToken(t *testing.T) {
	api := newAPI(t, nil, Options{})

	rr, env := api.do(t, http.MethodGet, "/api/v1/fei/F1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, env.OK)
	assert.NotEmpty(t, env.Error)

	rr, _ = api.do(t, http.MethodGet, "/api/v1/fei/F1", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDossierLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t, nil, Options{})
	token := api.token(t, examiner)

	rr, env := api.do(t, http.MethodPost, "/api/v1/fei/F1", token, `{"commune_mise_a_mort":"Chambord"}`)
	require.Equal(t, http.StatusOK, rr.Code, env.Error)
	var created dossierResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "F1", created.Fei.Numero)

	rr, env = api.do(t, http.MethodPost, "/api/v1/fei/F1/carcasse/F1_B1", token, `{"numero_bracelet":"B1","espece":"Sanglier"}`)
	require.Equal(t, http.StatusOK, rr.Code, env.Error)
	var unit unitResponse
	require.NoError(t, json.Unmarshal(env.Data, &unit))
	assert.Equal(t, "F1", unit.Carcasse.DossierNumero)
	assert.Equal(t, "B1", unit.Carcasse.NumeroBracelet)

	rr, env = api.do(t, http.MethodGet, "/api/v1/fei/F1", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var read dossierResponse
	require.NoError(t, json.Unmarshal(env.Data, &read))
	require.Len(t, read.Fei.Units, 1)
	assert.Equal(t, "F1_B1", read.Fei.Units[0].UnitID)
}

func TestErrorStatuses(t *testing.T) {
	api := newAPI(t, nil, Options{})
	token := api.token(t, examiner)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"unknown dossier", http.MethodGet, "/api/v1/fei/F404", token, "", http.StatusNotFound},
		{"wrong role", http.MethodPost, "/api/v1/fei/F2", api.token(t, collector), `{}`, http.StatusForbidden},
		{"numero mismatch", http.MethodPost, "/api/v1/fei/F3", token, `{"numero":"F4"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/fei/F3", token, `{"numero":`, http.StatusBadRequest},
		{"unit without dossier", http.MethodPost, "/api/v1/fei/F9/carcasse/F9_B1", token, `{"numero_bracelet":"B1"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := api.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, rr.Code, env.Error)
			assert.False(t, env.OK)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestSyncAlwaysReturnsOK(t *testing.T) {
	api := newAPI(t, nil, Options{})
	token := api.token(t, examiner)
	body := `{
	  "carcasses": [{"zacharie_carcasse_id": "F9_B1", "fei_numero": "F9", "numero_bracelet": "B1"}],
	  "feis": [{"numero": "F1", "commune_mise_a_mort": "Chambord"}],
	  "logs": [{"id": "log-1", "action": "fei_created_offline"}]
	}`

	rr, env := api.do(t, http.MethodPost, "/api/v1/sync", token, body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.OK)
	var res core.SyncResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.BatchID)
	require.Len(t, res.Dossiers, 1)
	assert.Equal(t, "F1", res.Dossiers[0].Numero)
	assert.Equal(t, []string{"log-1"}, res.SyncedLogIDs)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, domain.EntityUnit, res.Rejected[0].Kind)
	assert.Equal(t, "F9_B1", res.Rejected[0].Key)
}

func TestMetricsEndpointUsesRoutePatterns(t *testing.T) {
	api := newAPI(t, nil, Options{Metrics: obs.NewMetrics()})
	token := api.token(t, examiner)
	api.do(t, http.MethodGet, "/api/v1/fei/F404", token, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/api/v1/fei/{numero}"`)
}

func TestRateLimitPerClient(t *testing.T) {
	api := newAPI(t, nil, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})

	rr, _ := api.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, env := api.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate limit exceeded", env.Error)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	other := httptest.NewRecorder()
	api.router.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimiterPrunesIdleBuckets(t *testing.T) {
	l := newRateLimiter(1, 1)
	clock := now
	l.now = func() time.Time { return clock }
	require.True(t, l.allow("a"))
	require.False(t, l.allow("a"))

	clock = clock.Add(bucketTTL + 2*time.Minute)
	require.True(t, l.allow("b"))
	_, kept := l.buckets["a"]
	assert.False(t, kept)
}

func TestMaxBodyBytes(t *testing.T) {
	api := newAPI(t, nil, Options{MaxBodyBytes: 16})
	token := api.token(t, examiner)
	rr, env := api.do(t, http.MethodPost, "/api/v1/fei/F1", token, `{"commune_mise_a_mort":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "request body too large", env.Error)
}

type panickingService struct{ Service }

func (panickingService) GetDossier(context.Context, string) (domain.DossierView, error) {
	panic("boom")
}

type failingService struct{ Service }

func (failingService) GetDossier(context.Context, string) (domain.DossierView, error) {
	return domain.DossierView{}, errors.New("disk on fire")
}

func TestUnexpectedFailuresAreHidden(t *testing.T) {
	for name, svc := range map[string]Service{"panic": panickingService{}, "error": failingService{}} {
		t.Run(name, func(t *testing.T) {
			api := newAPI(t, svc, Options{})
			rr, env := api.do(t, http.MethodGet, "/api/v1/fei/F1", api.token(t, examiner), "")
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, "internal error", env.Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ValidationError{Entity: domain.EntityDossier, Reason: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", auth.ErrInvalidToken), http.StatusUnauthorized},
		{auth.ErrMissingToken, http.StatusUnauthorized},
		{domain.AuthorizationError{ActorID: "u", Action: "update", Reason: "not owner"}, http.StatusForbidden},
		{fmt.Errorf("load: %w", domain.NotFoundError{Entity: domain.EntityUnit, Key: "U"}), http.StatusNotFound},
		{domain.ConflictError{Entity: domain.EntityDossier, Key: "F1", Reason: "stale"}, http.StatusConflict},
		{domain.RuleViolationError{}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestDebugVarsIsOptIn(t *testing.T) {
	rr, _ := newAPI(t, nil, Options{}).do(t, http.MethodGet, "/debug/vars", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	rec := httptest.NewRecorder()
	newAPI(t, nil, Options{DebugVars: true}).router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memstats")
}
