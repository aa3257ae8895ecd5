// Package rpc implements terminal.Session against the HTTP gateway that
// runs next to the MT5 terminal. The Go process cannot link the terminal
// library directly, so production deployments point the bridge at this
// gateway.
package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/domain"
	"github.com/wingzero/mt5bridge/internal/terminal"
)

var log = logrus.WithField("component", "terminal_rpc")

const defaultTimeout = 15 * time.Second

// Client talks JSON over HTTP to the terminal-side gateway.
type Client struct {
	http *resty.Client
}

var _ terminal.Session = (*Client)(nil)

// New builds a client for the gateway at baseURL. A zero timeout uses
// the default; resty picks up proxy settings from the environment.
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "mt5bridge")
	return &Client{http: c}
}

// apiError is the gateway's error envelope.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	var apiErr apiError
	req.SetError(&apiErr)

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "terminal gateway %s %s", method, path)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		return errors.Errorf("terminal gateway %s %s: %s", method, path, msg)
	}
	return nil
}

func (c *Client) Connect(ctx context.Context, creds *domain.Credentials) error {
	body := map[string]any{}
	if !creds.Empty() {
		body["login"] = creds.Login
		body["password"] = creds.Password
		body["server"] = creds.Server
	}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, resty.MethodPost, "/connect", body, &out); err != nil {
		return err
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "terminal initialization failed"
		}
		return errors.New(out.Error)
	}
	return nil
}

func (c *Client) AccountInfo(ctx context.Context) (*domain.AccountSnapshot, error) {
	var out domain.AccountSnapshot
	if err := c.do(ctx, resty.MethodGet, "/account_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, resty.MethodGet, "/symbols", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context) ([]domain.PositionRecord, error) {
	var out []domain.PositionRecord
	if err := c.do(ctx, resty.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Orders(ctx context.Context) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	if err := c.do(ctx, resty.MethodGet, "/orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tick(ctx context.Context, symbol string) (*domain.MarketTick, error) {
	var out domain.MarketTick
	path := fmt.Sprintf("/tick/%s", symbol)
	if err := c.do(ctx, resty.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	return &out, nil
}

func (c *Client) SubmitDeal(ctx context.Context, req *terminal.DealRequest) (*terminal.DealResult, error) {
	var out terminal.DealResult
	if err := c.do(ctx, resty.MethodPost, "/order_send", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Shutdown() {
	// Best effort; the gateway side owns the terminal process.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.do(ctx, resty.MethodPost, "/shutdown", nil, nil); err != nil {
		log.Warnf("terminal shutdown call failed: %v", err)
	}
}
