package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HSouheill/barrim_notifications/models"
)

// API is the REST surface the agent falls back to
type API interface {
	ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
	GetPreferences(ctx context.Context) (models.DeliveryPreferences, error)
	UpdatePreferences(ctx context.Context, req models.UpdatePreferencesRequest) (models.DeliveryPreferences, error)
}

// StatusError is a non-2xx REST response
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Message)
}

// APIClient calls the notification REST endpoints with a bearer token
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewAPIClient creates a client for baseURL, e.g. "https://host"
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		token:   token,
	}
}

// envelope mirrors models.Response with the payload left undecoded
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *APIClient) ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out []models.Notification
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) UnreadCount(ctx context.Context) (int64, error) {
	var out models.CountPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (c *APIClient) MarkRead(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *APIClient) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.doJSON(ctx, http.MethodPut, "/api/notifications/read-all", nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *APIClient) GetPreferences(ctx context.Context) (models.DeliveryPreferences, error) {
	var out models.DeliveryPreferences
	err := c.doJSON(ctx, http.MethodGet, "/api/notifications/preferences", nil, &out)
	return out, err
}

func (c *APIClient) UpdatePreferences(ctx context.Context, req models.UpdatePreferencesRequest) (models.DeliveryPreferences, error) {
	var out models.DeliveryPreferences
	err := c.doJSON(ctx, http.MethodPut, "/api/notifications/preferences", req, &out)
	return out, err
}

// RegisterDeviceToken registers an FCM token for pushes while offline
func (c *APIClient) RegisterDeviceToken(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/notifications/device-token", models.DeviceTokenRequest{Token: token}, nil)
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
