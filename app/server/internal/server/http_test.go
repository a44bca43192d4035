package server

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/engine"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/metrics"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/model"
	"github.com/iWorld-y/expert_panel/app/server/internal/conf"
	"github.com/iWorld-y/expert_panel/app/server/internal/data"
	"github.com/iWorld-y/expert_panel/app/server/internal/service"
	"github.com/iWorld-y/expert_panel/app/server/internal/usecase"
)

type stubAnalyzer struct {
	err error
}

func (s stubAnalyzer) Process(ctx context.Context, problem string) (*model.AnalysisRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.AnalysisRun{
		OriginalProblem:        problem,
		GeneratedPersonasCount: 1,
		PersonaDefinitions:     []model.Persona{{Name: "Analyst", FocusAreas: []string{}}},
	}, nil
}

func newTestServer(t *testing.T, c *conf.Server, analyzer usecase.Analyzer) nethttp.Handler {
	t.Helper()
	logger := log.DefaultLogger
	d, cleanup, err := data.NewData(nil, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	reports := data.NewReportRepo(d, logger)
	svc := service.NewPanelService(
		usecase.NewPanelUseCase(analyzer, reports, logger),
		usecase.NewReportUseCase(reports, logger),
		logger,
	)
	srv, err := NewHTTPServer(c, svc, metrics.New(nil), logger)
	require.NoError(t, err)
	return srv
}

func do(h nethttp.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func reason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Reason
}

func TestHealthAndTest(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})

	rec := do(h, nethttp.MethodGet, "/health", "", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","message":"AI Expert Panel backend is running"}`, rec.Body.String())

	rec = do(h, nethttp.MethodPost, "/test", "application/json", "{}")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success"`)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})

	req := httptest.NewRequest(nethttp.MethodOptions, "/process_problem", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = do(h, nethttp.MethodGet, "/health", "", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProcessProblem(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})

	rec := do(h, nethttp.MethodPost, "/process_problem", "application/json",
		`{"business_problem":"  How can a regional bakery grow its wholesale revenue?  "}`)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	var run model.AnalysisRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "How can a regional bakery grow its wholesale revenue?", run.OriginalProblem)
	assert.Equal(t, 1, run.GeneratedPersonasCount)
}

func TestProcessProblem_BadRequests(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})

	tests := []struct {
		name        string
		contentType string
		body        string
		reason      string
	}{
		{"not json", "text/plain", "hello", "INVALID_REQUEST"},
		{"broken json", "application/json", "{", "INVALID_REQUEST"},
		{"missing problem", "application/json", `{}`, "MISSING_PROBLEM"},
		{"too short", "application/json", `{"business_problem":"short"}`, "INVALID_PROBLEM"},
		{"bad characters", "application/json", `{"business_problem":"How do we grow <script>alert(1)</script>"}`, "INVALID_PROBLEM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, nethttp.MethodPost, "/process_problem", tt.contentType, tt.body)
			assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.reason, reason(t, rec))
		})
	}
}

func TestProcessProblem_PersonaFailure(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{err: &engine.PipelineError{Stage: engine.StagePersonasGenerated, Err: engine.ErrNoPersonas}})

	rec := do(h, nethttp.MethodPost, "/process_problem", "application/json",
		`{"business_problem":"How can a regional bakery grow its wholesale revenue?"}`)
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.Equal(t, "PERSONA_GENERATION_FAILED", reason(t, rec))
}

func TestClientRateLimit(t *testing.T) {
	h := newTestServer(t, &conf.Server{Http: &conf.HTTP{ClientRPM: 1, ClientBurst: 1}}, stubAnalyzer{})
	body := `{"business_problem":"How can a regional bakery grow its wholesale revenue?"}`

	rec := do(h, nethttp.MethodPost, "/process_problem", "application/json", body)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	rec = do(h, nethttp.MethodPost, "/process_problem", "application/json", body)
	assert.Equal(t, nethttp.StatusTooManyRequests, rec.Code)

	// 其他路由不受影响
	rec = do(h, nethttp.MethodGet, "/health", "", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestReportsWithoutStore(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})

	rec := do(h, nethttp.MethodGet, "/reports?user_id=u1", "", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "REPORTS_DISABLED", reason(t, rec))

	rec = do(h, nethttp.MethodGet, "/reports", "", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = do(h, nethttp.MethodGet, "/reports/abc", "", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ID", reason(t, rec))

	rec = do(h, nethttp.MethodGet, "/analytics", "", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
}

func TestListReports_LimitBounds(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})

	for _, limit := range []string{"2000000000", "101", "-1", "ten"} {
		rec := do(h, nethttp.MethodGet, "/reports?user_id=u1&limit="+limit, "", "")
		assert.Equal(t, nethttp.StatusBadRequest, rec.Code, limit)
		assert.Equal(t, "INVALID_LIMIT", reason(t, rec), limit)
	}

	// 上限以内的请求进入仓储层，未配置数据库时返回 503
	rec := do(h, nethttp.MethodGet, "/reports?user_id=u1&limit=100", "", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil, stubAnalyzer{})
	rec := do(h, nethttp.MethodGet, "/metrics", "", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}
