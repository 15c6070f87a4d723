package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbandu/bag-sub001/internal/gateway"
	"github.com/jbandu/bag-sub001/pkg/config"
	"github.com/jbandu/bag-sub001/pkg/errors"
	"github.com/jbandu/bag-sub001/pkg/health"
	"github.com/jbandu/bag-sub001/pkg/logging"
	"github.com/jbandu/bag-sub001/pkg/resilience"
)

type stubAdapter struct {
	name    string
	methods []string
	fail    bool
}

func (s *stubAdapter) Name() string      { return s.name }
func (s *stubAdapter) Methods() []string { return s.methods }

func (s *stubAdapter) Invoke(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	if s.fail {
		return nil, errors.NewExternalError(s.name, "backend unavailable")
	}
	return map[string]interface{}{"method": method}, nil
}

func (s *stubAdapter) HealthCheck(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T, adapters ...*stubAdapter) (http.Handler, *gateway.Service) {
	t.Helper()

	gwCfg := gateway.DefaultConfig()
	gwCfg.DefaultRetry = resilience.RetryPolicy{
		MaxRetries:       1,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Exponential:      true,
		RetryRateLimited: true,
	}
	gw := gateway.NewService(gwCfg, nil)
	for _, a := range adapters {
		require.NoError(t, gw.Register(a, nil))
	}

	healthSvc := health.NewService(logging.GetLogger(), nil)
	healthSvc.RegisterChecker("gateway", health.NewGatewayChecker(gw, "gateway"))

	cfg := &config.Config{}
	return NewRouter(cfg, gw, healthSvc, nil), gw
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestCallEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/call", CallRequest{
		Target: "booking",
		Method: "lookup_bag",
		Params: map[string]interface{}{"tag": "0125123456"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	// The gateway result rides inside the envelope's data field.
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var gwResp gateway.Response
	require.NoError(t, json.Unmarshal(data, &gwResp))
	assert.True(t, gwResp.Success)
	assert.Equal(t, "booking", gwResp.Source)
}

func TestCallEndpointFailureStillAnswers200(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "typeb", methods: []string{"send_bsm"}, fail: true})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/call", CallRequest{
		Target:  "typeb",
		Method:  "send_bsm",
		Timeout: "2s",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var gwResp gateway.Response
	require.NoError(t, json.Unmarshal(data, &gwResp))
	assert.False(t, gwResp.Success)
	assert.Equal(t, errors.CodeExternal, gwResp.ErrorCode)
}

func TestCallEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/call", map[string]interface{}{
		"method": "lookup_bag",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/call", CallRequest{
		Target:  "booking",
		Method:  "lookup_bag",
		Timeout: "not-a-duration",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestTargetsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t,
		&stubAdapter{name: "booking", methods: []string{"lookup_bag"}},
		&stubAdapter{name: "courier", methods: []string{"book_delivery"}},
	)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/targets", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = doRequest(t, router, http.MethodGet, "/api/v1/targets/booking/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = doRequest(t, router, http.MethodGet, "/api/v1/targets/nowhere/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeNotFound, resp.Error.Code)
}

func TestBreakerResetEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/targets/booking/breaker/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/targets/nowhere/breaker/reset", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheInvalidationEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	rec, resp := doRequest(t, router, http.MethodDelete, "/api/v1/cache/booking", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = doRequest(t, router, http.MethodDelete, "/api/v1/cache/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1", nil)
	req.Header.Set("X-Request-ID", "req-12345")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-12345", rec.Header().Get("X-Request-ID"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-12345", resp.RequestID)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Minute)
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	router, _ := newTestRouter(t, &stubAdapter{name: "booking", methods: []string{"lookup_bag"}})

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/no-such-route", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeNotFound, resp.Error.Code)
}

func TestRecoveryReturnsInternalErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestIDMiddleware())
	engine.Use(ErrorHandlingMiddleware())
	engine.GET("/boom", func(c *gin.Context) {
		panic("unexpected")
	})

	rec, resp := doRequest(t, engine, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeInternal, resp.Error.Code)
	assert.NotEmpty(t, resp.RequestID)
}
