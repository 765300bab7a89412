package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/auth"
	"github.com/sells-group/taxpoint/internal/config"
	"github.com/sells-group/taxpoint/internal/orders"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// fakeSessions maps fixed tokens to user ids.
type fakeSessions struct {
	tokens map[string]int64
}

func (f *fakeSessions) Create(_ context.Context, userID int64) (string, error) {
	token := "tok"
	f.tokens[token] = userID
	return token, nil
}

func (f *fakeSessions) Resolve(_ context.Context, token string) (int64, error) {
	id, ok := f.tokens[token]
	if !ok {
		return 0, apperr.New(apperr.KindNotFound, "session not found")
	}
	return id, nil
}

func (f *fakeSessions) Destroy(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

// fakeResolver matches a fixed code inside New York-ish latitudes.
type fakeResolver struct{}

func (fakeResolver) Resolve(lat, lon float64) (string, bool, error) {
	if lat >= 40 && lat <= 45 && lon >= -80 && lon <= -71 {
		return "NE81", true, nil
	}
	return "", false, nil
}

func testCatalog(t *testing.T) *taxrate.Catalog {
	t.Helper()
	return taxrate.NewCatalog(map[string]taxrate.Jurisdictions{
		"NE81": {
			StateRate:    []taxrate.RateItem{{Name: "New York State", Rate: 0.04}},
			CountyRate:   []taxrate.RateItem{},
			CityRate:     []taxrate.RateItem{{Name: "New York City", Rate: 0.045}},
			SpecialRates: []taxrate.RateItem{{Name: "MCTD", Rate: 0.00375}},
		},
	})
}

// newTestServer wires a gateway over a mocked pool and a fake session with
// one logged-in user behind the token "tok".
func newTestServer(t *testing.T, mock pgxmock.PgxPoolIface) *httptest.Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Session.CookieName = "session_id"
	cfg.Session.TTLSeconds = 3600

	sessions := &fakeSessions{tokens: map[string]int64{"tok": 7}}
	calc := orders.NewCalculator(fakeResolver{}, testCatalog(t))

	srv := New(cfg, Deps{
		Users:    auth.NewUserStore(mock),
		Sessions: sessions,
		Orders:   orders.NewOrderStore(mock),
		Tasks:    orders.NewTaskStore(mock),
		Calc:     calc,
		Importer: nil,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// expectUserLookup queues the GetByID row behind the "tok" session.
func expectUserLookup(mock pgxmock.PgxPoolIface, authorities string) {
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "login", "password_hash", "full_name", "is_active", "authorities",
			"created_at", "updated_at",
		}).AddRow(int64(7), "analyst", "hash", (*string)(nil), true, []byte(authorities), now, now))
}

func authedRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "tok"})
	return req
}
