package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/worldgate/worldgate/internal/logger"
	"github.com/worldgate/worldgate/pkg/world"
)

// ErrInstanceNotFound is returned by GetInstance when the remote system no
// longer knows the instance.
var ErrInstanceNotFound = world.ErrInstanceNotFound

// Config holds the orchestration endpoint settings.
type Config struct {
	// Endpoint is the base URL of the remote orchestration API.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"required,url"`

	// SharedSecret authenticates service-to-service calls; sent as a bearer
	// token on every request. Optional for unauthenticated dev endpoints.
	SharedSecret string `mapstructure:"shared_secret" yaml:"shared_secret"`

	// MaxAttempts bounds how many times a call is tried before the failure
	// is surfaced. Default: 3.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// InitialBackoff is the first retry delay. Default: 250ms.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff caps the retry delay. Default: 5s.
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`

	// RequestTimeout bounds each individual HTTP request. Default: 15s.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// Client is an idempotent wrapper over the remote instance-provisioning API.
//
// Both Start and Stop are safe to retry: the remote keys Start by
// (worldID, tenantKey) and returns the existing instance for duplicates, and
// Stop treats already-stopped or unknown instances as success. Network
// failures and 5xx responses are retried with bounded exponential backoff;
// 4xx responses are surfaced immediately since retrying cannot change the
// outcome.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client for the given endpoint configuration.
func New(cfg Config) *Client {
	cfg.ApplyDefaults()
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

type startRequest struct {
	WorldID   string `json:"world_id"`
	TenantKey string `json:"tenant_key"`
}

type startResponse struct {
	InstanceID string `json:"instance_id"`
	AccessURL  string `json:"access_url"`
	Status     string `json:"status"`
}

type stopRequest struct {
	InstanceID string `json:"instance_id"`
}

// Start provisions (or returns the already-provisioned) instance hosting the
// world for the given tenant. After retries are exhausted the failure is
// wrapped in *world.ProvisionError.
func (c *Client) Start(ctx context.Context, worldID, tenantKey string) (*world.InstanceRef, error) {
	body, err := json.Marshal(startRequest{WorldID: worldID, TenantKey: tenantKey})
	if err != nil {
		return nil, err
	}

	var resp startResponse
	err = c.doWithRetry(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/machines/start", body, &resp)
	if err != nil {
		return nil, &world.ProvisionError{WorldID: worldID, TenantKey: tenantKey, Err: err}
	}

	return &world.InstanceRef{
		ID:        resp.InstanceID,
		AccessURL: resp.AccessURL,
		TenantKey: tenantKey,
		Status:    resp.Status,
	}, nil
}

// Stop tears down an instance. Stopping an already-stopped or unknown
// instance is a successful no-op; the remote answers 404 for those and the
// client swallows it. After retries are exhausted the failure is wrapped in
// *world.StopError.
func (c *Client) Stop(ctx context.Context, instanceID string) error {
	body, err := json.Marshal(stopRequest{InstanceID: instanceID})
	if err != nil {
		return err
	}

	err = c.doWithRetry(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/machines/stop", body, nil)
	if err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusNotFound {
			logger.Debug("stop on unknown instance treated as success",
				logger.KeyInstanceID, instanceID)
			return nil
		}
		return &world.StopError{InstanceID: instanceID, Err: err}
	}
	return nil
}

// GetInstance fetches the remote view of an instance, including its last
// heartbeat. Used by the background sweep; the registry itself stays owned
// by the remote system.
func (c *Client) GetInstance(ctx context.Context, instanceID string) (*world.InstanceRef, error) {
	var inst world.InstanceRef
	err := c.doWithRetry(ctx, http.MethodGet, c.cfg.Endpoint+"/v1/machines/"+instanceID, nil, &inst)
	if err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusNotFound {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// FetchWorldState pulls the exported world content from a live instance.
// The reconciler validates and checksums the result before anything is
// persisted.
func (c *Client) FetchWorldState(ctx context.Context, accessURL string) ([]byte, error) {
	url := strings.TrimSuffix(accessURL, "/") + "/state/export"

	var payload []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SharedSecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &httpStatusError{status: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&httpStatusError{status: resp.StatusCode})
		}

		payload, err = io.ReadAll(resp.Body)
		return err
	}

	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to fetch world state from %s: %w", url, err)
	}
	return payload, nil
}

// httpStatusError carries a non-2xx response status through the retry loop.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("orchestrator returned HTTP %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("orchestrator returned HTTP %d", e.status)
}

// doWithRetry performs one logical API call with bounded exponential
// backoff. 5xx and transport errors are retried; 4xx are permanent.
func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, out any) error {
	attempt := 0

	operation := func() error {
		attempt++

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SharedSecret)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warn("orchestrator call failed, will retry",
				logger.KeyEndpoint, url,
				logger.KeyAttempt, attempt,
				logger.KeyMaxRetries, c.cfg.MaxAttempts,
				logger.KeyError, err.Error(),
			)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			logger.Warn("orchestrator returned server error, will retry",
				logger.KeyEndpoint, url,
				logger.KeyHTTPStatus, resp.StatusCode,
				logger.KeyAttempt, attempt,
			)
			return &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
		}
		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(&httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))})
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode orchestrator response: %w", err))
			}
		}
		return nil
	}

	return backoff.Retry(operation, c.newBackoff(ctx))
}

// newBackoff builds the per-call retry policy: exponential delay starting at
// InitialBackoff, capped at MaxBackoff, for at most MaxAttempts tries, and
// aborted when the context is done.
func (c *Client) newBackoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0 // attempts are bounded by count, not wall clock

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)
}
