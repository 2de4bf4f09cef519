package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbd172102/trading-dashboard/broker"
)

func testServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:       srv.URL,
		APIKey:        "key-1",
		ClientCode:    "C123",
		Password:      "1234",
		TOTP:          func() string { return "000000" },
		Exchange:      "MCX",
		TradingSymbol: "SILVERM27FEB26FUT",
		SymbolToken:   "12345",
	}, srv.Client())
	return srv, c
}

func TestLoginParsesTokens(t *testing.T) {
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, loginPath, r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-PrivateKey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "C123", body["clientcode"])
		assert.Equal(t, "000000", body["totp"])

		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]string{
				"jwtToken":     "jwt-1",
				"refreshToken": "ref-1",
				"feedToken":    "feed-1",
			},
		})
	})

	cred, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", cred.Token)
	assert.Equal(t, "ref-1", cred.RefreshToken)
	assert.Equal(t, "feed-1", cred.FeedToken)
	assert.Equal(t, 23*time.Hour, cred.Validity)
}

func TestLoginRejected(t *testing.T) {
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid totp"})
	})

	_, err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid totp")
}

func TestRefreshFallsBackToLogin(t *testing.T) {
	var paths []string
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == renewPath {
			// Refresh token expired server-side.
			json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]string{"jwtToken": "jwt-2", "refreshToken": "ref-2", "feedToken": "feed-2"},
		})
	})

	cred, err := c.Refresh(context.Background(), broker.Credential{Token: "jwt-1", RefreshToken: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-2", cred.Token)
	assert.Equal(t, []string{renewPath, loginPath}, paths)
}

func TestRefreshWithoutPriorTokenLogsIn(t *testing.T) {
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, loginPath, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]string{"jwtToken": "jwt-1"},
		})
	})

	cred, err := c.Refresh(context.Background(), broker.Credential{})
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", cred.Token)
}

func TestPlaceOrderAccepted(t *testing.T) {
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, orderPath, r.URL.Path)
		assert.Equal(t, "jwt-1", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BUY", body["transactiontype"])
		assert.Equal(t, "MARKET", body["ordertype"])
		assert.Equal(t, "INTRADAY", body["producttype"])
		assert.Equal(t, float64(10), body["quantity"])

		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]string{"orderid": "OD-77"},
		})
	})

	res, err := c.PlaceOrder(context.Background(), broker.Credential{Token: "jwt-1"},
		broker.OrderRequest{Side: "BUY", Instrument: "SILVERM", Quantity: 10})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "OD-77", res.OrderID)
}

func TestPlaceOrderRejectedIsNotAnError(t *testing.T) {
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Insufficient margin"})
	})

	res, err := c.PlaceOrder(context.Background(), broker.Credential{Token: "jwt-1"},
		broker.OrderRequest{Side: "BUY", Quantity: 10})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "Insufficient margin", res.Reason)
}

type deadSource struct{}

func (deadSource) Refresh(context.Context, broker.Credential) (broker.Credential, error) {
	return broker.Credential{}, assert.AnError
}

func TestPlacerFailsClosedWithoutSession(t *testing.T) {
	_, c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request may reach the venue without a session")
	})
	session := broker.NewSessionManager(deadSource{}, 5*time.Minute)
	p := NewPlacer(c, session)

	_, err := p.PlaceOrder(context.Background(), broker.OrderRequest{Side: "BUY", Quantity: 10})
	assert.ErrorIs(t, err, broker.ErrNoCredential)
}

func TestTOTPReferenceVector(t *testing.T) {
	// RFC 6238 appendix B, SHA-1 row at T=59s (last 6 digits).
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	code, err := totpAt(secret, time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "287082", code)
}

func TestTOTPRejectsBadSecret(t *testing.T) {
	_, err := TOTPNow("not!base32")
	assert.Error(t, err)
}
