// Package api is the client side of the REST API. Client implements the
// message store, the profile store and the identity provider the session
// consumes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

type RegisterInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type authResponse struct {
	User        domain.User `json:"user"`
	AccessToken string      `json:"access_token"`
}

type Client struct {
	baseURL string
	http    *http.Client

	mu        sync.RWMutex
	token     string
	user      *domain.User
	signedOut []func()
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	return c.signIn(ctx, "/api/v1/auth/register", input)
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	return c.signIn(ctx, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
}

// Logout tells the server and forgets the token. The signed-out callbacks run
// even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if _, ok := c.CurrentUserID(); !ok {
		return domain.ErrNotSignedIn
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)

	c.mu.Lock()
	c.token = ""
	c.user = nil
	fns := c.signedOut
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return err
}

func (c *Client) CurrentUserID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return uuid.Nil, false
	}
	return c.user.ID, true
}

// CurrentUser returns the signed-in user, or nil.
func (c *Client) CurrentUser() *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) OnSignedOut(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signedOut = append(c.signedOut, fn)
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// LiveURL is the websocket endpoint for the current token.
func (c *Client) LiveURL() (string, error) {
	token := c.Token()
	if token == "" {
		return "", domain.ErrNotSignedIn
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func (c *Client) ListProfiles(ctx context.Context, except uuid.UUID) ([]domain.Profile, error) {
	var profiles []domain.Profile
	if err := c.do(ctx, http.MethodGet, "/api/v1/profiles", nil, &profiles); err != nil {
		return nil, err
	}
	return lo.Filter(profiles, func(p domain.Profile, _ int) bool { return p.ID != except }), nil
}

func (c *Client) FetchConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	peer, err := c.peerOf(a, b)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := c.do(ctx, http.MethodGet, conversationPath(peer, "messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) FetchLastMessage(ctx context.Context, a, b uuid.UUID) (*domain.Message, error) {
	peer, err := c.peerOf(a, b)
	if err != nil {
		return nil, err
	}
	var msg *domain.Message
	if err := c.do(ctx, http.MethodGet, conversationPath(peer, "last"), nil, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// CountUnread only answers for the signed-in receiver.
func (c *Client) CountUnread(ctx context.Context, receiver, sender uuid.UUID) (int, error) {
	if err := c.requireSelf(receiver); err != nil {
		return 0, err
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, conversationPath(sender, "unread"), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) InsertMessage(ctx context.Context, sender, receiver uuid.UUID, content, nonce string) (domain.Message, error) {
	if err := c.requireSelf(sender); err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	body := map[string]string{"content": content, "nonce": nonce}
	if err := c.do(ctx, http.MethodPost, conversationPath(receiver, "messages"), body, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (c *Client) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/v1/messages/read", map[string][]uuid.UUID{"ids": ids}, nil)
}

func (c *Client) signIn(ctx context.Context, path string, body any) (*domain.User, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	subject, err := tokenSubject(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	if subject != resp.User.ID {
		return nil, fmt.Errorf("token subject %s does not match user %s", subject, resp.User.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = resp.AccessToken
	c.user = &resp.User
	u := resp.User
	return &u, nil
}

// peerOf returns the side of the pair that is not the signed-in user.
func (c *Client) peerOf(a, b uuid.UUID) (uuid.UUID, error) {
	self, ok := c.CurrentUserID()
	switch {
	case !ok:
		return uuid.Nil, domain.ErrNotSignedIn
	case a == self:
		return b, nil
	case b == self:
		return a, nil
	}
	return uuid.Nil, domain.ErrNotParticipant
}

func (c *Client) requireSelf(id uuid.UUID) error {
	self, ok := c.CurrentUserID()
	if !ok {
		return domain.ErrNotSignedIn
	}
	if id != self {
		return domain.ErrNotParticipant
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Fields = env.Error.Fields
	}
	return apiErr
}

// tokenSubject reads the user id from a token without verifying it. Only the
// server holds the key.
func tokenSubject(token string) (uuid.UUID, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing token: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

func conversationPath(peer uuid.UUID, resource string) string {
	return "/api/v1/conversations/" + peer.String() + "/" + resource
}

// IsStatus reports whether err is an API error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
