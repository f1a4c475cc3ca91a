package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized means the access token was rejected.
var ErrUnauthorized = errors.New("pushbullet rejected the access token")

// User is the account behind an access token.
type User struct {
	Iden  string `json:"iden"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// API is the request/response side of the relay.
type API interface {
	Me(ctx context.Context) (*User, error)
	History(ctx context.Context, limit int, modifiedAfter time.Time) ([]Push, error)
}

// Client talks to the Pushbullet REST API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient returns a Client with a 10 second timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Me fetches the current user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// History lists pushes modified after the given time, newest first.
func (c *Client) History(ctx context.Context, limit int, modifiedAfter time.Time) ([]Push, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("modified_after", strconv.FormatInt(modifiedAfter.Unix(), 10))

	var resp struct {
		Pushes []Push `json:"pushes"`
	}
	if err := c.get(ctx, "/pushes", q, &resp); err != nil {
		return nil, err
	}
	return resp.Pushes, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Access-Token", c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
			return fmt.Errorf("pushbullet %s: %s", path, e.Error.Message)
		}
		return fmt.Errorf("pushbullet %s: status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
