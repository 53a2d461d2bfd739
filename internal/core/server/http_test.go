package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/segmenter/internal/core/api"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	env := newTestEnv(t)
	srv, err := NewHTTPServer(env.cfg, env.service, quietLogger, env.metrics)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHTTP_Health(t *testing.T) {
	h := newTestRouter(t)
	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHTTP_Fields(t *testing.T) {
	h := newTestRouter(t)
	w := do(t, h, http.MethodGet, "/v1/fields", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.FieldsResponse](t, w)
	require.Len(t, resp.Fields, 6)
	assert.Equal(t, "Last Purchase Date", resp.Fields[3].Label)
}

func TestHTTP_Calculate(t *testing.T) {
	h := newTestRouter(t)

	t.Run("inline customers", func(t *testing.T) {
		body := `{
			"rules": {"type":"group","combinator":"OR","rules":[
				{"field":"visits","operator":"greaterThan","value":"5"},
				{"field":"email","operator":"contains","value":"VIP"}
			]},
			"customers": [
				{"id":"a","attributes":{"visits":9}},
				{"id":"b","attributes":{"email":"vip@example.com"}},
				{"id":"c","attributes":{"visits":1,"email":"x@example.com"}}
			]
		}`
		w := do(t, h, http.MethodPost, "/v1/segments/calculate", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[api.ComputeAudienceResponse](t, w)
		assert.Equal(t, 2, resp.Audience.MatchedCount)
		assert.Equal(t, `Visits is greater than 5 or Email contains "VIP"`, resp.Summary)
	})

	t.Run("stored population", func(t *testing.T) {
		body := `{"source":"stored","rules":{"type":"group","combinator":"AND","children":[]}}`
		w := do(t, h, http.MethodPost, "/v1/segments/calculate", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[api.ComputeAudienceResponse](t, w)
		assert.Equal(t, 3, resp.Audience.MatchedCount, "empty AND matches everyone")
	})

	t.Run("binding failure", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/v1/segments/calculate", `{"source":"elsewhere","rules":{}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid tree", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/v1/segments/calculate", `{"rules":{"type":"group","combinator":"AND","children":[{"type":"rule","field":"visits","operator":"before","value":"2024-01-01"}]}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "InvalidArgument")
	})
}

func TestHTTP_SegmentLifecycle(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/v1/segments", `{"name":"Loyal"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[api.SegmentResponse](t, w)
	etag := w.Header().Get("ETag")
	assert.Equal(t, `"`+created.Segment.ETag+`"`, etag)
	assert.Equal(t, "/v1/segments/"+string(created.Segment.ID), w.Header().Get("Location"))
	path := "/v1/segments/" + string(created.Segment.ID)

	w = do(t, h, http.MethodGet, path, "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	edit := `{"op":"updateRule","node_id":"` + string(created.Segment.ID) + `"}`
	w = do(t, h, http.MethodPost, path+"/edits", edit, "If-Match", `"stale"`)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = do(t, h, http.MethodPost, path+"/edits", `{"op":"setCombinator","combinator":"or"}`, "If-Match", etag)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode[api.SegmentResponse](t, w)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))

	w = do(t, h, http.MethodPost, path+"/edits", `{"op":"addGroup","combinator":"NOR"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "custom combinator validator")

	w = do(t, h, http.MethodPost, path+"/edits", `{"op":"addRule","rule":{"field":"visits","operator":"greaterThan","value":"5"}}`,
		"If-Match", `"`+edited.Segment.ETag+`"`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Total Spend is greater than 1000 or Visits is greater than 5", decode[api.SegmentResponse](t, w).Summary)

	w = do(t, h, http.MethodPost, path+"/recalculate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recalc := decode[api.RecalculateSegmentResponse](t, w)
	assert.EqualValues(t, 3, recalc.Segment.AudienceSize)

	w = do(t, h, http.MethodGet, "/v1/segments?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[api.ListSegmentsResponse](t, w).Total)

	w = do(t, h, http.MethodGet, "/v1/segments?limit=0&offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTP_GenerateAndDescribe(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/v1/ai/generate-segment", `{"query":"customers inactive for 3 months","save":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	gen := decode[api.GenerateSegmentResponse](t, w)
	assert.Equal(t, "Last Purchase Date was at least 90 days ago", gen.Summary)
	require.NotNil(t, gen.Segment)
	assert.True(t, gen.Segment.IsAIGenerated)

	body, err := json.Marshal(api.DescribeSegmentRequest{Rules: gen.Rules})
	require.NoError(t, err)
	w = do(t, h, http.MethodPost, "/v1/segments/describe", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, gen.Summary, decode[api.DescribeSegmentResponse](t, w).Summary)

	w = do(t, h, http.MethodPost, "/v1/ai/generate-segment", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTP_Metrics(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodGet, "/v1/fields", "")

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(`segmenter_server_request_duration_seconds_count{code="200",method="GET /v1/fields",transport="http"} 1`)))
}
