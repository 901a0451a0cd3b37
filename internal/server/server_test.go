package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/surebet/internal/adapters/cache"
	"github.com/alejandrodnm/surebet/internal/adapters/storage"
	"github.com/alejandrodnm/surebet/internal/application/settlement"
	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/metrics"
	"github.com/alejandrodnm/surebet/internal/server"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "surebet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	n := 0
	m := metrics.New()
	svc := settlement.New(db, cache.NewMemoryCache(time.Minute), m,
		settlement.WithClock(func() time.Time { return now }),
		settlement.WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	ts := httptest.NewServer(server.New(server.Config{RequestTimeout: 5 * time.Second}, svc, m).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

const createBody = `{
	"event": "Betis vs Sevilla",
	"sport": "football",
	"event_date": "2026-10-14",
	"percentage": "2.5",
	"legs": [
		{"bookmaker": "bet365", "selection": "1", "stake": "100", "odd": "2.10"},
		{"bookmaker": "Pinnacle", "selection": "X2", "stake": "100", "odd": "2.00"}
	]
}`

func createSet(t *testing.T, ts *httptest.Server) domain.BetSet {
	t.Helper()
	resp := do(t, ts, http.MethodPost, "/api/v1/sets", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var set domain.BetSet
	decodeBody(t, resp, &set)
	return set
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_CreateSet(t *testing.T) {
	ts := newTestServer(t)
	set := createSet(t, ts)

	assert.Equal(t, "id-1", set.ID)
	assert.Equal(t, domain.StatusPending, set.Status)
	assert.True(t, set.EventDate.Equal(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)))
	require.Len(t, set.Legs, 2)
	// A: 100×2.10 − 100 − 100 = 10 ; B: 100×2.00 − 100 − 100 = 0
	assert.True(t, d("10").Equal(set.Legs[0].PotentialProfit))
	assert.True(t, set.Legs[1].PotentialProfit.IsZero())
	assert.False(t, set.Legs[0].ActualProfit.Valid)
}

func TestServer_CreateSetValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"event":`},
		{"one leg", `{"event":"A vs B","legs":[{"bookmaker":"x","stake":"1","odd":"2"}]}`},
		{"zero stake", `{"event":"A vs B","legs":[{"bookmaker":"x","stake":"0","odd":"2"},{"bookmaker":"y","stake":"1","odd":"2"}]}`},
		{"odd below one", `{"event":"A vs B","legs":[{"bookmaker":"x","stake":"1","odd":"0.5"},{"bookmaker":"y","stake":"1","odd":"2"}]}`},
		{"bad date", `{"event":"A vs B","event_date":"14/10/2026","legs":[{"bookmaker":"x","stake":"1","odd":"2"},{"bookmaker":"y","stake":"1","odd":"2"}]}`},
		{"unknown field", `{"event":"A vs B","foo":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodPost, "/api/v1/sets", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var e server.ErrorResponse
			decodeBody(t, resp, &e)
			assert.Equal(t, http.StatusBadRequest, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}

	resp := do(t, ts, http.MethodGet, "/api/v1/sets", "")
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &list)
	assert.Zero(t, list.Count, "nada debe persistirse")
}

func TestServer_SettlementFlow(t *testing.T) {
	ts := newTestServer(t)
	set := createSet(t, ts)
	base := "/api/v1/sets/" + set.ID

	resp := do(t, ts, http.MethodPut, base+"/legs/"+set.Legs[0].ID+"/outcome", `{"outcome":"won"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.BetSet
	decodeBody(t, resp, &got)
	assert.Equal(t, domain.StatusPending, got.Status, "una sola pata marcada")

	resp = do(t, ts, http.MethodPut, base+"/legs/"+set.Legs[1].ID+"/outcome", `{"outcome":"Lost"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, domain.StatusResolved, got.Status)
	for _, l := range got.Legs {
		require.True(t, l.ActualProfit.Valid)
		assert.True(t, d("10").Equal(l.ActualProfit.Decimal))
	}

	// cambiar el outcome de un set resuelto exige reset
	resp = do(t, ts, http.MethodPut, base+"/legs/"+set.Legs[0].ID+"/outcome", `{"outcome":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// editar el stake de B re-liquida: 100×2.10 − 100 − 50 = 60
	resp = do(t, ts, http.MethodPatch, base+"/legs/"+set.Legs[1].ID, `{"stake":"50"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.True(t, d("60").Equal(got.Legs[0].ActualProfit.Decimal))
	assert.True(t, d("60").Equal(got.Legs[0].PotentialProfit))

	resp = do(t, ts, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum domain.Summary
	decodeBody(t, resp, &sum)
	assert.Equal(t, 1, sum.Resolved)
	assert.True(t, d("60").Equal(sum.ActualProfit))

	resp = do(t, ts, http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, domain.StatusPending, got.Status)
	for _, l := range got.Legs {
		assert.False(t, l.ActualProfit.Valid)
		assert.Equal(t, domain.OutcomeNone, l.Outcome)
	}

	resp = do(t, ts, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, ts, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ErrorStatus(t *testing.T) {
	ts := newTestServer(t)
	set := createSet(t, ts)
	leg := "/api/v1/sets/" + set.ID + "/legs/" + set.Legs[0].ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing set", http.MethodGet, "/api/v1/sets/nope", "", http.StatusNotFound},
		{"missing leg", http.MethodPut, "/api/v1/sets/" + set.ID + "/legs/nope/outcome", `{"outcome":"won"}`, http.StatusNotFound},
		{"unknown outcome", http.MethodPut, leg + "/outcome", `{"outcome":"void"}`, http.StatusBadRequest},
		{"empty outcome", http.MethodPut, leg + "/outcome", `{"outcome":""}`, http.StatusBadRequest},
		{"negative odd", http.MethodPatch, leg, `{"odd":"-1"}`, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/v1/sets?status=open", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/sets?limit=-1", "", http.StatusBadRequest},
		{"reset missing", http.MethodPost, "/api/v1/sets/nope/reset", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_ListFilters(t *testing.T) {
	ts := newTestServer(t)
	first := createSet(t, ts)
	createSet(t, ts)

	resp := do(t, ts, http.MethodPut, "/api/v1/sets/"+first.ID+"/legs/"+first.Legs[0].ID+"/outcome", `{"outcome":"returned"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, ts, http.MethodPut, "/api/v1/sets/"+first.ID+"/legs/"+first.Legs[1].ID+"/outcome", `{"outcome":"returned"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Sets  []domain.BetSet `json:"sets"`
		Count int             `json:"count"`
	}
	resp = do(t, ts, http.MethodGet, "/api/v1/sets?status=resolved&bookmaker=pinnacle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, first.ID, list.Sets[0].ID)

	resp = do(t, ts, http.MethodGet, "/api/v1/sets?from=2026-10-15", "")
	decodeBody(t, resp, &list)
	assert.Zero(t, list.Count)

	resp = do(t, ts, http.MethodGet, "/api/v1/sets?limit=1", "")
	decodeBody(t, resp, &list)
	assert.Equal(t, 1, list.Count)
}

func TestServer_Preview(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/v1/preview",
		`{"legs":[{"stake":"100","odd":"2.10","outcome":"won"},{"stake":"100","odd":"2.00","outcome":"lost"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p domain.Preview
	decodeBody(t, resp, &p)
	assert.Equal(t, domain.StatusResolved, p.Status)
	require.True(t, p.ActualProfit.Valid)
	assert.True(t, d("10").Equal(p.ActualProfit.Decimal))

	resp = do(t, ts, http.MethodPost, "/api/v1/preview", `{"legs":[{"stake":"100","odd":"2.10"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ExtractText(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/extract",
		strings.NewReader("bet365\nEvento: Betis vs Sevilla\nCuota: 2,10\nImporte: 100,00 €"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Fields domain.BetSlipFields `json:"fields"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, "bet365", out.Fields.Bookmaker)
	assert.Equal(t, "Betis vs Sevilla", out.Fields.Event)
	require.NotNil(t, out.Fields.Odd)
	assert.True(t, d("2.10").Equal(*out.Fields.Odd))
	require.NotNil(t, out.Fields.Stake)
	assert.True(t, d("100").Equal(*out.Fields.Stake))
}

func TestServer_ExtractDocumentWithoutOCR(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "slip.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/extract", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	createSet(t, ts)

	// el middleware registra la request después de escribir la respuesta
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return strings.Contains(string(body), "surebet_sets_created_total 1") &&
			strings.Contains(string(body), `surebet_http_requests_total{method="POST",route="/api/v1/sets",status="201"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
}
