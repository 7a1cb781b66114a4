package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jsjperu/wha-relay/pkg/protocol"
)

// APIError is a non-2xx response from the relay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

// ClientInfo describes one live connection.
type ClientInfo struct {
	ID          string          `json:"id"`
	RUC         string          `json:"ruc"`
	ConnectedAt time.Time       `json:"connectedAt"`
	Address     string          `json:"address"`
	Status      json.RawMessage `json:"status,omitempty"`
}

// ClientList is the response of GET /api/clients.
type ClientList struct {
	Count   int          `json:"count"`
	Clients []ClientInfo `json:"clients"`
}

// Venta is a send request for POST /api/venta.
type Venta struct {
	RUC         string `json:"ruc"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	ImagePath   string `json:"image_path,omitempty"`
}

// VentaResult is the response of POST /api/venta.
type VentaResult struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Delivered bool            `json:"delivered"`
}

// AdminClient talks to the relay's HTTP API.
type AdminClient struct {
	BaseURL    string
	HTTPClient *http.Client
	SendSecret string // signs /api/venta bodies when set

	token string
}

// NewAdminClient creates a client for the relay at baseURL (http(s)://host:port).
func NewAdminClient(baseURL string) *AdminClient {
	return &AdminClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login exchanges operator credentials for a bearer token used by later calls.
func (c *AdminClient) Login(ctx context.Context, username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

// ListClients returns every live connection.
func (c *AdminClient) ListClients(ctx context.Context) (*ClientList, error) {
	var out ClientList
	if err := c.do(ctx, http.MethodGet, "/api/clients", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disconnect closes the connection with socketID and/or the session of ruc.
func (c *AdminClient) Disconnect(ctx context.Context, socketID, ruc string) (string, error) {
	body := map[string]string{}
	if socketID != "" {
		body["socket_id"] = socketID
	}
	if ruc != "" {
		body["ruc"] = ruc
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/disconnect", body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ListTokens returns the tenant token map.
func (c *AdminClient) ListTokens(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := c.do(ctx, http.MethodGet, "/api/auth", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertToken creates or replaces a tenant token.
func (c *AdminClient) UpsertToken(ctx context.Context, ruc, token string) error {
	return c.do(ctx, http.MethodPost, "/api/auth", map[string]string{"ruc": ruc, "token": token}, nil)
}

// DeleteToken removes a tenant token.
func (c *AdminClient) DeleteToken(ctx context.Context, ruc string) error {
	return c.do(ctx, http.MethodDelete, "/api/auth", map[string]string{"ruc": ruc}, nil)
}

// Send posts an outbound notification, signing the body when SendSecret is set.
func (c *AdminClient) Send(ctx context.Context, v Venta) (*VentaResult, error) {
	var out VentaResult
	if err := c.do(ctx, http.MethodPost, "/api/venta", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if path == "/api/venta" && c.SendSecret != "" {
		req.Header.Set(protocol.SignatureHeader, protocol.SignBody(c.SendSecret, body))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
