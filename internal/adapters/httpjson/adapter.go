// Package httpjson provides a generic adapter for external systems that
// expose a JSON-over-HTTP interface. Each semantic method maps to one
// endpoint; params travel as the JSON body for writes and as query
// parameters for reads.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jbandu/bag-sub001/pkg/adapter"
	"github.com/jbandu/bag-sub001/pkg/errors"
	"github.com/jbandu/bag-sub001/pkg/logging"
)

// Endpoint maps one semantic method onto an HTTP endpoint
type Endpoint struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// Config holds the adapter configuration
type Config struct {
	Name       string              `json:"name"`
	BaseURL    string              `json:"base_url"`
	Endpoints  map[string]Endpoint `json:"endpoints"`
	Headers    map[string]string   `json:"headers"`
	HealthPath string              `json:"health_path"`
	Timeout    time.Duration       `json:"timeout"`
}

// Adapter is a JSON-over-HTTP implementation of the gateway adapter contract
type Adapter struct {
	config  *Config
	client  *http.Client
	methods []string
	logger  *logging.Logger
}

// New creates a new HTTP/JSON adapter
func New(config *Config) (*Adapter, error) {
	if config == nil || config.Name == "" {
		return nil, errors.NewValidationError("adapter name is required")
	}
	if config.BaseURL == "" {
		return nil, errors.NewValidationError("base URL is required for adapter " + config.Name)
	}
	if len(config.Endpoints) == 0 {
		return nil, errors.NewValidationError("at least one endpoint is required for adapter " + config.Name)
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, errors.NewValidationError("invalid base URL for adapter " + config.Name).WithCause(err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	methods := make([]string, 0, len(config.Endpoints))
	for method := range config.Endpoints {
		methods = append(methods, method)
	}

	return &Adapter{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		methods: methods,
		logger:  logging.GetLogger(),
	}, nil
}

// Name returns the adapter name
func (a *Adapter) Name() string {
	return a.config.Name
}

// Methods returns the semantic methods this adapter supports
func (a *Adapter) Methods() []string {
	return a.methods
}

// Invoke executes one semantic method against the remote system
func (a *Adapter) Invoke(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	endpoint, ok := a.config.Endpoints[method]
	if !ok {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("method %s not configured on adapter %s", method, a.config.Name))
	}

	httpMethod := strings.ToUpper(endpoint.Method)
	if httpMethod == "" {
		httpMethod = http.MethodPost
	}

	req, err := a.buildRequest(ctx, httpMethod, endpoint.Path, params)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewTimeoutError(a.config.Name + "." + method).WithCause(ctx.Err())
		}
		return nil, errors.NewExternalError(a.config.Name, "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.NewExternalError(a.config.Name, "failed to read response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewExternalError(a.config.Name,
			fmt.Sprintf("%s returned status %d", method, resp.StatusCode)).
			WithDetail("status_code", fmt.Sprintf("%d", resp.StatusCode)).
			WithDetail("method", method)
	}

	if len(body) == 0 {
		return nil, nil
	}

	var result interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.NewExternalError(a.config.Name, "invalid JSON response").WithCause(err)
	}
	return result, nil
}

// HealthCheck probes the remote system's health endpoint
func (a *Adapter) HealthCheck(ctx context.Context) error {
	path := a.config.HealthPath
	if path == "" {
		path = "/health"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+path, nil)
	if err != nil {
		return errors.NewInternalError("failed to build health request").WithCause(err)
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.NewExternalError(a.config.Name, "health check failed").WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 500 {
		return errors.NewExternalError(a.config.Name,
			fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}
	return nil
}

func (a *Adapter) buildRequest(ctx context.Context, httpMethod, path string, params map[string]interface{}) (*http.Request, error) {
	target := a.config.BaseURL + path

	var req *http.Request
	var err error

	if httpMethod == http.MethodGet || httpMethod == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, httpMethod, target, nil)
		if err == nil && len(params) > 0 {
			q := req.URL.Query()
			for k, v := range params {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			req.URL.RawQuery = q.Encode()
		}
	} else {
		var body io.Reader
		if len(params) > 0 {
			data, merr := json.Marshal(params)
			if merr != nil {
				return nil, errors.NewValidationError("params are not JSON-serializable").WithCause(merr)
			}
			body = bytes.NewReader(data)
		}
		req, err = http.NewRequestWithContext(ctx, httpMethod, target, body)
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to build request").WithCause(err)
	}

	req.Header.Set("Accept", "application/json")
	a.setHeaders(req)
	return req, nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
}

var _ adapter.Adapter = (*Adapter)(nil)
