package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kasuganosora/civmanager/game/lifecycle"
)

// Client speaks the REST API the way the browser client does. It implements
// the collaborators lifecycle.Session needs.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a Client for the server at base.
func NewClient(base string) *Client {
	return &Client{base: base, http: &http.Client{}}
}

// APIError is a non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Do sends a JSON request and decodes a JSON answer into out (if non-nil).
func (c *Client) Do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", ClientOrigin)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

type sessionResp struct {
	Token     string `json:"token"`
	AccountID int64  `json:"account_id"`
	Recovery  bool   `json:"recovery"`
}

func (s sessionResp) identity() lifecycle.Identity {
	return lifecycle.Identity{AccountID: s.AccountID, Token: s.Token, Recovery: s.Recovery}
}

func (c *Client) credentials(ctx context.Context, path, email, password string) (lifecycle.Identity, error) {
	var s sessionResp
	err := c.Do(ctx, http.MethodPost, path, "", map[string]string{"email": email, "password": password}, &s)
	return s.identity(), err
}

// SignIn implements lifecycle.Authenticator.
func (c *Client) SignIn(ctx context.Context, email, password string) (lifecycle.Identity, error) {
	return c.credentials(ctx, "/api/auth/signin", email, password)
}

// SignUp implements lifecycle.Authenticator.
func (c *Client) SignUp(ctx context.Context, email, password string) (lifecycle.Identity, error) {
	return c.credentials(ctx, "/api/auth/signup", email, password)
}

// SignOut implements lifecycle.Authenticator.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/signout", token, nil, nil)
}

// OpenRecovery implements lifecycle.Authenticator.
func (c *Client) OpenRecovery(ctx context.Context, resetToken string) (lifecycle.Identity, error) {
	var s sessionResp
	err := c.Do(ctx, http.MethodPost, "/api/auth/password/recover", "", map[string]string{"token": resetToken}, &s)
	return s.identity(), err
}

// UpdatePassword implements lifecycle.Authenticator.
func (c *Client) UpdatePassword(ctx context.Context, token, newPassword string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/password/update", token, map[string]string{"password": newPassword}, nil)
}

// RequestReset asks for a recovery e-mail.
func (c *Client) RequestReset(ctx context.Context, email string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/password/reset", "", map[string]string{"email": email}, nil)
}

// HasCivilization implements lifecycle.CivilizationLookup.
func (c *Client) HasCivilization(ctx context.Context, id lifecycle.Identity) (bool, error) {
	err := c.Do(ctx, http.MethodGet, "/api/civilization", id.Token, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return false, nil
	}
	return err == nil, err
}

// Found implements lifecycle.Founder.
func (c *Client) Found(ctx context.Context, id lifecycle.Identity, name string) error {
	return c.Do(ctx, http.MethodPost, "/api/civilization", id.Token, map[string]string{"name": name}, nil)
}

// Balance is the resource payload.
type Balance struct {
	Food          int64 `json:"food"`
	Gold          int64 `json:"gold"`
	Materials     int64 `json:"materials"`
	MilitaryPower int64 `json:"military_power"`
}

// Resources reads the balance of the caller's civilization.
func (c *Client) Resources(ctx context.Context, token string) (Balance, error) {
	var b Balance
	err := c.Do(ctx, http.MethodGet, "/api/resources", token, nil, &b)
	return b, err
}

// Signals opens the SSE stream of token and converts auth events into
// lifecycle signals. The stream ends when ctx is cancelled.
func (c *Client) Signals(ctx context.Context, token string) (<-chan lifecycle.Signal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/sse?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Origin", ClientOrigin)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode}
	}

	r := bufio.NewReader(resp.Body)
	// Wait for the subscription to be live before handing the stream out.
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if strings.TrimSpace(line) == "event: connected" {
			break
		}
	}

	out := make(chan lifecycle.Signal, 8)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: ")
			if !ok {
				continue
			}
			select {
			case out <- lifecycle.Signal(name):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
