package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/calc"
	"paperqa/internal/domain"
	"paperqa/internal/metrics"
	"paperqa/internal/service"
	"paperqa/internal/vectorstore"
)

type stubAsker struct{ queries []string }

func (s *stubAsker) Ask(_ context.Context, q string) service.Result {
	s.queries = append(s.queries, q)
	if strings.HasPrefix(q, "Calculate") {
		return service.Result{RequestID: "r1", Category: domain.CategoryCalculation, Expression: "4+4", Answer: "8"}
	}
	return service.Result{RequestID: "r2", Category: domain.CategoryCalculation, Expression: "1/0", Err: calc.ErrDivisionByZero}
}

type stubIndex struct{ err error }

func (s stubIndex) Get(context.Context) (vectorstore.Index, error) { return nil, s.err }

func testApp(asker Asker) (*metrics.Metrics, func(*http.Request) (*http.Response, error)) {
	m := metrics.New()
	app := New(NewHandler(asker, stubIndex{err: vectorstore.ErrIndexNotFound}, nil), m.Handler())
	return m, func(r *http.Request) (*http.Response, error) {
		return app.Test(r, int((5 * time.Second).Milliseconds()))
	}
}

func TestAsk(t *testing.T) {
	asker := &stubAsker{}
	_, send := testApp(asker)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query":"Calculate 4+4"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := send(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out askResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "calculation", out.Category)
	assert.Equal(t, "8", out.Answer)
	assert.Equal(t, "Calculation route.\nThe result of 4+4 is 8", out.Display)
	assert.Empty(t, out.Error)
	assert.Equal(t, []string{"Calculate 4+4"}, asker.queries)
}

func TestAskReportsHandlerErrorsInBody(t *testing.T) {
	_, send := testApp(&stubAsker{})
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query":"divide"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := send(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out askResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "division by zero", out.Error)
}

func TestAskRejectsBadRequests(t *testing.T) {
	_, send := testApp(&stubAsker{})
	for _, body := range []string{`{"query":"   "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := send(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestHealthIndexAndMetrics(t *testing.T) {
	m, send := testApp(&stubAsker{})
	m.ObserveQuery("rag", time.Second, false)

	resp, err := send(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = send(httptest.NewRequest(http.MethodGet, "/index", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = send(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `paperqa_queries_total{category="rag"} 1`)
}
