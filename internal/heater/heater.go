// Package heater controls the bed heater (an Eight Sleep pod) over its cloud API.
package heater

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sweeney/sleep-machine/internal/logger"
)

// Heater is the bed heater as seen by the state machine.
type Heater interface {
	// IsOn reports the last power state this process commanded successfully.
	IsOn(ctx context.Context) (bool, error)
	SetPower(ctx context.Context, on bool) error
	SetTemperature(ctx context.Context, level int) error
}

// Options configures a Client.
type Options struct {
	AuthURL      string
	ClientURL    string
	AppURL       string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

var (
	// ErrNotAuthenticated is returned when login succeeds without a token or user.
	ErrNotAuthenticated = errors.New("heater: not authenticated")
	// ErrNoCredentials is returned when username or password is empty.
	ErrNoCredentials = errors.New("heater: username and password are required")
)

// expirySlack renews the token slightly before the server would reject it.
const expirySlack = 30 * time.Second

// Client talks to the Eight Sleep API.
type Client struct {
	http *http.Client
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
	userID string
	on     bool
}

// NewClient creates a Client. Nothing is sent until the first command.
func NewClient(opts Options, httpClient *http.Client) (*Client, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, ErrNoCredentials
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{http: httpClient, opts: opts, now: time.Now}, nil
}

// IsOn implements Heater. It does not touch the network.
func (c *Client) IsOn(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on, nil
}

type podState struct {
	CurrentState *podStateType `json:"currentState,omitempty"`
	CurrentLevel *int          `json:"currentLevel,omitempty"`
}

type podStateType struct {
	Type string `json:"type"`
}

// SetPower implements Heater.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "smart"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.putPod(ctx, podState{CurrentState: &podStateType{Type: state}}); err != nil {
		return fmt.Errorf("set pod %s: %w", state, err)
	}
	c.on = on

	logger.InfoKV(ctx, "Pod power set", "on", on)
	return nil
}

// SetTemperature implements Heater. Level ranges from -100 to 100.
func (c *Client) SetTemperature(ctx context.Context, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.putPod(ctx, podState{CurrentLevel: &level}); err != nil {
		return fmt.Errorf("set pod level %d: %w", level, err)
	}

	logger.InfoKV(ctx, "Pod temperature set", "level", level)
	return nil
}

func (c *Client) putPod(ctx context.Context, body podState) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/temperature/pod?ignoreDeviceErrors=false",
		c.opts.AppURL, url.PathEscape(c.userID))

	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

// ensureSession logs in when the token is missing or expired and resolves the user id.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.token == "" || !c.now().Before(c.expiry) {
		if err := c.login(ctx); err != nil {
			return err
		}
	}
	if c.userID == "" {
		if err := c.fetchUserID(ctx); err != nil {
			return err
		}
	}
	return nil
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
}

func (c *Client) login(ctx context.Context) error {
	c.token = ""

	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, c.opts.AuthURL+"/v1/tokens", tokenRequest{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		GrantType:    "password",
		Username:     c.opts.Username,
		Password:     c.opts.Password,
	}, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("login: %w: empty access token", ErrNotAuthenticated)
	}

	c.token = resp.AccessToken
	c.expiry = c.now().Add(time.Duration(resp.ExpiresIn*float64(time.Second)) - expirySlack)

	logger.DebugKV(ctx, "Heater login succeeded", "expires", c.expiry)
	return nil
}

type meResponse struct {
	User struct {
		UserID string `json:"userId"`
	} `json:"user"`
}

func (c *Client) fetchUserID(ctx context.Context) error {
	var resp meResponse
	if err := c.do(ctx, http.MethodGet, c.opts.ClientURL+"/v1/users/me", nil, &resp); err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if resp.User.UserID == "" {
		return fmt.Errorf("fetch user: %w: empty user id", ErrNotAuthenticated)
	}
	c.userID = resp.User.UserID
	return nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sleep-machine")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized {
			c.token = ""
		}
		return &StatusError{Method: method, URL: endpoint, Code: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
