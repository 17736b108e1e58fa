// Package apiclient calls the reminder REST API on behalf of the chat front-end.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pathakanu/remindbot/internal/model"
)

// ErrInvalidBaseURL is returned by New for an unusable API_URL.
var ErrInvalidBaseURL = errors.New("invalid API base URL")

// Error is a non-2xx response decoded from the API error body.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// NewReminder is the create payload. Times are sent with their offset.
type NewReminder struct {
	UserID           uint       `json:"user_id"`
	ChatID           int64      `json:"chat_id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	EventTime        *time.Time `json:"event_time,omitempty"`
	RepeatType       *string    `json:"repeat_type,omitempty"`
	NotificationTime *time.Time `json:"notification_time,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
}

// Client is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for baseURL whose requests time out after timeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// FindUserByExternalID returns the user for a chat identity, or nil when none exists.
func (c *Client) FindUserByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	var users []model.User
	query := url.Values{"external_id": {strconv.FormatInt(externalID, 10)}}
	if err := c.do(ctx, http.MethodGet, "/users/", query, nil, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// CreateUser registers a chat identity.
func (c *Client) CreateUser(ctx context.Context, externalID int64, username string) (*model.User, error) {
	body := map[string]any{"external_id": externalID}
	if username != "" {
		body["username"] = username
	}
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/users/", nil, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureUser finds or registers the user. A concurrent registration that
// wins the race is resolved by a second lookup.
func (c *Client) EnsureUser(ctx context.Context, externalID int64, username string) (*model.User, error) {
	user, err := c.FindUserByExternalID(ctx, externalID)
	if err != nil || user != nil {
		return user, err
	}
	user, err = c.CreateUser(ctx, externalID, username)
	if IsStatus(err, http.StatusConflict) {
		user, err = c.FindUserByExternalID(ctx, externalID)
		if err == nil && user == nil {
			err = fmt.Errorf("api: user %d vanished after conflict", externalID)
		}
	}
	return user, err
}

// ListReminders returns a user's reminders in one chat, soonest first.
func (c *Client) ListReminders(ctx context.Context, userID uint, chatID int64) ([]model.Reminder, error) {
	query := url.Values{
		"user_id": {strconv.FormatUint(uint64(userID), 10)},
		"chat_id": {strconv.FormatInt(chatID, 10)},
	}
	var reminders []model.Reminder
	if err := c.do(ctx, http.MethodGet, "/reminders/", query, nil, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

// CreateReminder persists a reminder and returns the stored record.
func (c *Client) CreateReminder(ctx context.Context, in NewReminder) (*model.Reminder, error) {
	var reminder model.Reminder
	if err := c.do(ctx, http.MethodPost, "/reminders/", nil, in, &reminder); err != nil {
		return nil, err
	}
	return &reminder, nil
}

// DeleteReminder deletes a reminder as userID; the API enforces ownership.
func (c *Client) DeleteReminder(ctx context.Context, id, userID uint) error {
	query := url.Values{"user_id": {strconv.FormatUint(uint64(userID), 10)}}
	return c.do(ctx, http.MethodDelete, "/reminders/"+strconv.FormatUint(uint64(id), 10), query, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := *c.base
	endpoint.Path = c.base.Path + path
	endpoint.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, payload []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Error == "" {
		return &Error{Status: status, Message: strings.TrimSpace(string(payload))}
	}
	return &Error{Status: status, Code: body.Code, Message: body.Error}
}
