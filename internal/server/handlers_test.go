package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxpoint/internal/auth"
)

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := newTestServer(t, mock)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestOrdersRequireSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := newTestServer(t, mock)
	resp, err := http.Get(ts.URL + "/orders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unauthenticated", errBody["code"])
}

func TestCreateOrderForbiddenWithoutAuthority(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUserLookup(mock, `["READ_ORDERS"]`)
	ts := newTestServer(t, mock)

	req := authedRequest(t, http.MethodPost, ts.URL+"/orders",
		strings.NewReader(`{"latitude":40.7,"longitude":-74.0,"timestamp":"2025-06-15T12:00:00Z","subtotal":100}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderComputesAndPersists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUserLookup(mock, `["READ_ORDERS","EDIT_ORDERS"]`)
	mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), 40.7128, -74.006, pgxmock.AnyArg(), pgxmock.AnyArg(),
			"NE81", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(42), time.Now().UTC()))

	ts := newTestServer(t, mock)
	req := authedRequest(t, http.MethodPost, ts.URL+"/orders",
		strings.NewReader(`{"latitude":40.7128,"longitude":-74.006,"timestamp":"2025-06-15T12:00:00Z","subtotal":"100.00"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(42), body["id"])
	assert.Equal(t, "NE81", body["reporting_code"])
	assert.InDelta(t, 0.08875, body["composite_tax_rate"], 1e-9)
	assert.InDelta(t, 8.88, body["tax_amount"], 1e-9)
	assert.InDelta(t, 108.88, body["total_amount"], 1e-9)
	assert.Equal(t, "analyst", body["author_login"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderOutsideCoverage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUserLookup(mock, `["EDIT_ORDERS"]`)
	ts := newTestServer(t, mock)

	req := authedRequest(t, http.MethodPost, ts.URL+"/orders",
		strings.NewReader(`{"latitude":34.05,"longitude":-118.24,"timestamp":"2025-06-15T12:00:00Z","subtotal":100}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "outside_coverage", errBody["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderMissingFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUserLookup(mock, `["EDIT_ORDERS"]`)
	ts := newTestServer(t, mock)

	req := authedRequest(t, http.MethodPost, ts.URL+"/orders",
		strings.NewReader(`{"latitude":40.7}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation_error", errBody["code"])
	assert.ElementsMatch(t, []any{"longitude", "timestamp", "subtotal"}, errBody["fields"])
}

func TestOrderStatsRejectsBadDates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUserLookup(mock, `["READ_ORDERS"]`)
	ts := newTestServer(t, mock)

	req := authedRequest(t, http.MethodGet, ts.URL+"/orders/stats?from_date=2025-06-01&to_date=2025.06.02", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRegisterOpensSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("newbie", pgxmock.AnyArg(), (*string)(nil), []byte(`["READ_ORDERS"]`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(int64(9), true, now, now))

	ts := newTestServer(t, mock)
	resp, err := http.Post(ts.URL+"/auth/register", "application/json",
		strings.NewReader(`{"login":"newbie","password":"longenough"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.NotEmpty(t, sessionCookie.Value)
	assert.True(t, sessionCookie.HttpOnly)

	body := decodeBody(t, resp)
	assert.Equal(t, "newbie", body["login"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejectsShortCredentials(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := newTestServer(t, mock)
	resp, err := http.Post(ts.URL+"/auth/register", "application/json",
		strings.NewReader(`{"login":"ab","password":"short"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"login", "password"}, errBody["fields"])
}

func TestLoginWrongPassword(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hash, err := auth.HashPassword("the-real-password")
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE login`).
		WithArgs("analyst").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "login", "password_hash", "full_name", "is_active", "authorities",
			"created_at", "updated_at",
		}).AddRow(int64(7), "analyst", hash, (*string)(nil), true, []byte(`[]`), now, now))

	ts := newTestServer(t, mock)
	resp, err := http.Post(ts.URL+"/auth/login", "application/json",
		strings.NewReader(`{"login":"analyst","password":"wrong-password"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "invalid_credentials", errBody["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMeReturnsCurrentUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUserLookup(mock, `["READ_ORDERS"]`)
	ts := newTestServer(t, mock)

	req := authedRequest(t, http.MethodGet, ts.URL+"/auth/me", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "analyst", decodeBody(t, resp)["login"])
}
