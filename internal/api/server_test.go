package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-analytics/matchpoint/internal/config"
	"github.com/matchpoint-analytics/matchpoint/internal/store"
)

const testKey = "secret-key"

type fakeReader struct {
	matches    []store.MatchRow
	lastFilter store.MatchFilter
	years      []int
	divisions  []string
	err        error
}

func (f *fakeReader) ListMatches(ctx context.Context, filter store.MatchFilter) ([]store.MatchRow, error) {
	f.lastFilter = filter
	return f.matches, f.err
}

func (f *fakeReader) ListYears(ctx context.Context) ([]int, error) {
	return f.years, f.err
}

func (f *fakeReader) ListDivisions(ctx context.Context, year int) ([]string, error) {
	return f.divisions, f.err
}

func testServer(reader MatchReader) *httptest.Server {
	srv := NewServer(config.ServerConfig{
		APIKey:          testKey,
		RateLimitPerMin: 600,
		MaxPageSize:     100,
	}, reader)
	return httptest.NewServer(srv.Routes())
}

func get(t *testing.T, ts *httptest.Server, path, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	ts := testServer(&fakeReader{})
	defer ts.Close()

	resp := get(t, ts, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMatches_RequiresAPIKey(t *testing.T) {
	ts := testServer(&fakeReader{})
	defer ts.Close()

	assert.Equal(t, http.StatusForbidden, get(t, ts, "/matches", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, get(t, ts, "/matches", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, ts, "/matches", testKey).StatusCode)
}

func TestMatches_EmptyAPIKeyConfigDisablesAuth(t *testing.T) {
	srv := NewServer(config.ServerConfig{RateLimitPerMin: 600}, &fakeReader{})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	assert.Equal(t, http.StatusOK, get(t, ts, "/matches", "").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, ts, "/matches", "anything").StatusCode)
}

func TestMatches_Filters(t *testing.T) {
	reader := &fakeReader{}
	ts := testServer(reader)
	defer ts.Close()

	resp := get(t, ts, "/matches?year=2026&division=WTA&limit=10", testKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.MatchFilter{Year: 2026, Division: "WTA", Limit: 10}, reader.lastFilter)
}

func TestMatches_LimitCappedToMaxPageSize(t *testing.T) {
	reader := &fakeReader{}
	ts := testServer(reader)
	defer ts.Close()

	get(t, ts, "/matches?limit=5000", testKey)
	assert.Equal(t, 100, reader.lastFilter.Limit)
}

func TestMatches_DefaultLimitIsMaxPageSize(t *testing.T) {
	reader := &fakeReader{}
	ts := testServer(reader)
	defer ts.Close()

	get(t, ts, "/matches", testKey)
	assert.Equal(t, 100, reader.lastFilter.Limit)
}

func TestMatches_BadQueryParams(t *testing.T) {
	ts := testServer(&fakeReader{})
	defer ts.Close()

	assert.Equal(t, http.StatusBadRequest, get(t, ts, "/matches?year=abc", testKey).StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, ts, "/matches?limit=-1", testKey).StatusCode)
}

func TestMatches_StoreErrorDegradesToEmptyList(t *testing.T) {
	reader := &fakeReader{err: eris.New("database away")}
	ts := testServer(reader)
	defer ts.Close()

	resp := get(t, ts, "/matches", testKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []store.MatchRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	assert.Empty(t, rows)
}

func TestMatches_ReturnsRows(t *testing.T) {
	winner := "Nadal R."
	reader := &fakeReader{matches: []store.MatchRow{{
		ID: 1, RoundName: "Döntő", PlayerA: "Nadal R.", PlayerB: "Smith J.",
		Winner: &winner, Status: "finished", Surface: "Clay",
	}}}
	ts := testServer(reader)
	defer ts.Close()

	resp := get(t, ts, "/matches", testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []store.MatchRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Döntő", rows[0].RoundName)
}

func TestYearsAndDivisions(t *testing.T) {
	reader := &fakeReader{years: []int{2026, 2025}, divisions: []string{"ATP", "WTA"}}
	ts := testServer(reader)
	defer ts.Close()

	resp := get(t, ts, "/years", testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var years []int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&years))
	assert.Equal(t, []int{2026, 2025}, years)

	resp = get(t, ts, "/divisions?year=2026", testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var divisions []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&divisions))
	assert.Equal(t, []string{"ATP", "WTA"}, divisions)
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(config.ServerConfig{APIKey: testKey, RateLimitPerMin: 2}, &fakeReader{})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	// The burst equals the per-minute budget; the third request in the
	// same instant must be rejected.
	assert.Equal(t, http.StatusOK, get(t, ts, "/matches", testKey).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, ts, "/matches", testKey).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, get(t, ts, "/matches", testKey).StatusCode)
}
