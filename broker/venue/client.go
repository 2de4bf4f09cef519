// Package venue implements the trading-venue HTTP client: session
// login/renewal and market-order placement against the SmartAPI-style
// REST endpoints.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kbd172102/trading-dashboard/broker"
)

// DefaultBaseURL is the venue's production REST root.
const DefaultBaseURL = "https://apiconnect.angelone.in"

const (
	loginPath = "/rest/auth/angelbroking/user/v1/loginByPassword"
	renewPath = "/rest/auth/angelbroking/jwt/v1/generateTokens"
	orderPath = "/rest/secure/angelbroking/order/v1/placeOrder"
)

// Config identifies the account and instrument at the venue.
type Config struct {
	BaseURL       string
	APIKey        string
	ClientCode    string
	Password      string
	TOTP          func() string // returns the current one-time code
	Exchange      string        // e.g. "MCX"
	TradingSymbol string        // e.g. "SILVERM27FEB26FUT"
	SymbolToken   string

	// TokenValidity is how long a freshly issued session token is
	// assumed valid. The venue issues roughly day-long sessions.
	TokenValidity time.Duration
}

// Client is the venue REST client. It satisfies broker.CredentialSource
// and, bound to a session manager via NewPlacer, broker.OrderPlacer.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenValidity == 0 {
		cfg.TokenValidity = 23 * time.Hour
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient, now: time.Now}
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

func (c *Client) headers(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", "127.0.0.1")
	req.Header.Set("X-ClientPublicIP", "127.0.0.1")
	req.Header.Set("X-MACAddress", "00:00:00:00:00:00")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
}

func (c *Client) post(ctx context.Context, path, token string, payload any) (*apiEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.headers(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("venue %s: HTTP %d: %s", path, resp.StatusCode, string(raw))
	}
	return &env, nil
}

// Login performs a full password+TOTP login and returns a fresh
// credential.
func (c *Client) Login(ctx context.Context) (broker.Credential, error) {
	payload := map[string]string{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"state":      "live",
	}
	if c.cfg.TOTP != nil {
		payload["totp"] = c.cfg.TOTP()
	}

	env, err := c.post(ctx, loginPath, "", payload)
	if err != nil {
		return broker.Credential{}, fmt.Errorf("venue login: %w", err)
	}
	if !env.Status {
		return broker.Credential{}, fmt.Errorf("venue login rejected: %s", env.Message)
	}

	var td tokenData
	if err := json.Unmarshal(env.Data, &td); err != nil {
		return broker.Credential{}, fmt.Errorf("venue login payload: %w", err)
	}
	return c.credential(td), nil
}

// Refresh satisfies broker.CredentialSource. With a held refresh token
// it renews the session; otherwise it falls back to a full login.
func (c *Client) Refresh(ctx context.Context, prev broker.Credential) (broker.Credential, error) {
	if prev.RefreshToken == "" {
		return c.Login(ctx)
	}

	env, err := c.post(ctx, renewPath, prev.Token, map[string]string{
		"refreshToken": prev.RefreshToken,
	})
	if err != nil {
		return broker.Credential{}, fmt.Errorf("venue token renew: %w", err)
	}
	if !env.Status {
		// Renewal can expire server-side; a full login still works.
		return c.Login(ctx)
	}

	var td tokenData
	if err := json.Unmarshal(env.Data, &td); err != nil {
		return broker.Credential{}, fmt.Errorf("venue renew payload: %w", err)
	}
	return c.credential(td), nil
}

func (c *Client) credential(td tokenData) broker.Credential {
	return broker.Credential{
		Token:        td.JWTToken,
		RefreshToken: td.RefreshToken,
		FeedToken:    td.FeedToken,
		IssuedAt:     c.now(),
		Validity:     c.cfg.TokenValidity,
	}
}

type orderData struct {
	OrderID string `json:"orderid"`
}

// PlaceOrder submits an intraday market order using the given session
// token.
func (c *Client) PlaceOrder(ctx context.Context, cred broker.Credential, req broker.OrderRequest) (broker.OrderResult, error) {
	payload := map[string]any{
		"exchange":        c.cfg.Exchange,
		"tradingsymbol":   c.cfg.TradingSymbol,
		"symboltoken":     c.cfg.SymbolToken,
		"quantity":        req.Quantity,
		"transactiontype": req.Side,
		"ordertype":       "MARKET",
		"producttype":     "INTRADAY",
		"variety":         "NORMAL",
		"duration":        "DAY",
	}

	env, err := c.post(ctx, orderPath, cred.Token, payload)
	if err != nil {
		return broker.OrderResult{}, err
	}
	if !env.Status {
		return broker.OrderResult{Accepted: false, Reason: env.Message}, nil
	}

	var od orderData
	if err := json.Unmarshal(env.Data, &od); err != nil {
		return broker.OrderResult{}, fmt.Errorf("venue order payload: %w", err)
	}
	return broker.OrderResult{Accepted: true, OrderID: od.OrderID}, nil
}

// Placer binds the client to a session manager, yielding a
// broker.OrderPlacer that fails closed when no valid credential is
// available.
type Placer struct {
	client  *Client
	session *broker.SessionManager
}

func NewPlacer(client *Client, session *broker.SessionManager) *Placer {
	return &Placer{client: client, session: session}
}

func (p *Placer) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	cred, err := p.session.Ensure(ctx)
	if err != nil {
		// No order is ever sent on an expired or missing session.
		return broker.OrderResult{}, err
	}
	return p.client.PlaceOrder(ctx, cred, req)
}
