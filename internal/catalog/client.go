package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dosync/internal/config"
	"dosync/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	RetryWaitTime    = 100 * time.Millisecond
	RetryWaitTimeMax = 3 * time.Second
)

// Client reads subscriptions and dataset metadata from the data catalog API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// APIError is a non-2xx catalog response other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("catalog API returned %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog API returned %d: %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Error string `json:"error"`
}

type subscriptionResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
	Project   string    `json:"project"`
	Dataset   string    `json:"dataset"`
	Table     string    `json:"table"`
}

type datasetResponse struct {
	ID          string `json:"id"`
	GeographyID string `json:"geography_id"`
}

func NewClient(cfg config.CatalogConfig, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	r := resty.New()
	r.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	r.SetHeader("Accept", "application/json")
	r.SetTimeout(cfg.Timeout)
	r.SetRetryCount(cfg.RetryCount)
	r.SetRetryWaitTime(RetryWaitTime)
	r.SetRetryMaxWaitTime(RetryWaitTimeMax)
	r.AddRetryCondition(retryCondition)
	if cfg.APIKey != "" {
		r.SetAuthToken(cfg.APIKey)
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{http: r, limiter: limiter, logger: logger}
}

// retryCondition retries network errors and transient HTTP statuses.
func retryCondition(response *resty.Response, err error) bool {
	if err != nil && (response == nil || response.StatusCode() == 0) {
		return !strings.Contains(err.Error(), "no such host")
	}

	switch response.StatusCode() {
	case
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("catalog rate limit: %w", err)
	}
	return nil
}

// get issues a GET and decodes into out. It reports found=false on 404.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}

	var apiErr errorResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return false, fmt.Errorf("catalog request %s: %w", path, err)
	}

	c.logger.Debug().
		Str("url", res.Request.URL).
		Int("status", res.StatusCode()).
		Dur("duration", res.Time()).
		Msg("catalog request")

	if res.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, &APIError{StatusCode: res.StatusCode(), Message: apiErr.Error}
	}
	return true, nil
}

// GetSubscription returns nil when the user holds no such subscription.
func (c *Client) GetSubscription(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	var body subscriptionResponse
	found, err := c.get(ctx, "/users/{userID}/subscriptions/{subscriptionID}", map[string]string{
		"userID":         userID,
		"subscriptionID": subscriptionID,
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", subscriptionID, err)
	}
	if !found {
		return nil, nil
	}

	sub := &models.Subscription{
		ID:        body.ID,
		Type:      models.SubscriptionType(body.Type),
		ExpiresAt: body.ExpiresAt.UTC(),
		Project:   body.Project,
		Dataset:   body.Dataset,
		Table:     body.Table,
	}
	if sub.ID == "" {
		sub.ID = subscriptionID
	}
	// Older catalog entries carry only the qualified id.
	if sub.Project == "" && sub.Dataset == "" && sub.Table == "" {
		if project, dataset, table, ok := models.SplitCatalogID(sub.ID); ok {
			sub.Project, sub.Dataset, sub.Table = project, dataset, table
		}
	}
	return sub, nil
}

// GetDatasetGeographyID returns "" when the dataset is unknown or links no geography.
func (c *Client) GetDatasetGeographyID(ctx context.Context, datasetID string) (string, error) {
	var body datasetResponse
	found, err := c.get(ctx, "/datasets/{datasetID}", map[string]string{"datasetID": datasetID}, &body)
	if err != nil {
		return "", fmt.Errorf("failed to get dataset %s: %w", datasetID, err)
	}
	if !found {
		return "", nil
	}
	return body.GeographyID, nil
}
