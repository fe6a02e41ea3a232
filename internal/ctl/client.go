package ctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatrelay/pkg/api/routes/backend"
	"chatrelay/pkg/api/routes/frontend"
	"chatrelay/pkg/models"
)

const defaultTimeout = 10 * time.Second

// Client calls the chatrelay HTTP API with one API key. User scoped calls
// take the acting user and its signature per call.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

func NewClient(base, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Identity is the user a call acts for. Backend keys may leave Signature
// empty; frontend keys need it.
type Identity struct {
	UserID    string
	Signature string
}

func (c *Client) do(method, path string, as *Identity, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("X-User-ID", as.UserID)
		if as.Signature != "" {
			req.Header.Set("X-User-Signature", as.Signature)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Sign asks the server to mint a signature for userID. Needs a backend key.
func (c *Client) Sign(userID string) (string, error) {
	var res backend.SignResponse
	if err := c.do(http.MethodPost, "/v1/_sign", nil, map[string]string{"userId": userID}, &res); err != nil {
		return "", err
	}
	return res.Signature, nil
}

func (c *Client) History(as Identity, with string) (*frontend.MessagesResponse, error) {
	var res frontend.MessagesResponse
	path := "/v1/chats/" + url.PathEscape(with) + "/messages"
	if err := c.do(http.MethodGet, path, &as, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Send(as Identity, to, body string) (*frontend.MessageResponse, error) {
	var res frontend.MessageResponse
	path := "/v1/chats/" + url.PathEscape(to) + "/messages"
	if err := c.do(http.MethodPost, path, &as, frontend.SendRequest{Body: body}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterUser upserts a directory entry. Needs a backend key.
func (c *Client) RegisterUser(u models.User) error {
	return c.do(http.MethodPost, "/v1/users", nil, u, nil)
}
