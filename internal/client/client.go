// Package client provides HTTP client functionality for webhook notifications.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
)

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	Timeout            time.Duration     `json:"timeout"`
	MaxRetries         int               `json:"max_retries"`
	RetryDelay         time.Duration     `json:"retry_delay"`
	MaxIdleConns       int               `json:"max_idle_conns"`
	IdleConnTimeout    time.Duration     `json:"idle_conn_timeout"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify"`
	UserAgent          string            `json:"user_agent"`
	DefaultHeaders     map[string]string `json:"default_headers"`
	MaxResponseSize    int64             `json:"max_response_size"`
}

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		RetryDelay:         1 * time.Second,
		MaxIdleConns:       100,
		IdleConnTimeout:    90 * time.Second,
		InsecureSkipVerify: false,
		UserAgent:          "Proteus-SNMP-Engine/1.0",
		DefaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		MaxResponseSize: 10 * 1024 * 1024, // 10MB
	}
}

// WebhookRequest represents a webhook HTTP request
type WebhookRequest struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        interface{}       `json:"body"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

// WebhookResponse represents a webhook HTTP response
type WebhookResponse struct {
	StatusCode   int           `json:"status_code"`
	Body         []byte        `json:"body"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// ClientStats tracks HTTP client statistics
type ClientStats struct {
	RequestsSent      int64         `json:"requests_sent"`
	RequestsSucceeded int64         `json:"requests_succeeded"`
	RequestsFailed    int64         `json:"requests_failed"`
	TotalRetries      int64         `json:"total_retries"`
	TotalLatency      time.Duration `json:"total_latency"`
	StatusCodes       map[int]int64 `json:"status_codes"`
}

// HTTPClient provides HTTP client functionality for webhooks
type HTTPClient struct {
	config     *ClientConfig
	httpClient *http.Client
	stats      *ClientStats
	mu         sync.RWMutex
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(cfg config.Provider) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	clientConfig := DefaultClientConfig()

	if timeout, err := cfg.GetDuration("client.timeout", clientConfig.Timeout); err == nil {
		clientConfig.Timeout = timeout
	}

	if maxRetries, err := cfg.GetInt("client.max_retries", clientConfig.MaxRetries); err == nil {
		clientConfig.MaxRetries = maxRetries
	}

	if retryDelay, err := cfg.GetDuration("client.retry_delay", clientConfig.RetryDelay); err == nil {
		clientConfig.RetryDelay = retryDelay
	}

	if maxIdleConns, err := cfg.GetInt("client.max_idle_conns", clientConfig.MaxIdleConns); err == nil {
		clientConfig.MaxIdleConns = maxIdleConns
	}

	if insecureSkipVerify, err := cfg.GetBool("client.insecure_skip_verify", clientConfig.InsecureSkipVerify); err == nil {
		clientConfig.InsecureSkipVerify = insecureSkipVerify
	}

	if userAgent, err := cfg.GetString("client.user_agent", clientConfig.UserAgent); err == nil {
		clientConfig.UserAgent = userAgent
	}

	transport := &http.Transport{
		MaxIdleConns:    clientConfig.MaxIdleConns,
		IdleConnTimeout: clientConfig.IdleConnTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: clientConfig.InsecureSkipVerify,
		},
	}

	return &HTTPClient{
		config: clientConfig,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   clientConfig.Timeout,
		},
		stats: &ClientStats{
			StatusCodes: make(map[int]int64),
		},
	}, nil
}

// SendWebhook sends a webhook request with retries
func (c *HTTPClient) SendWebhook(ctx context.Context, request *WebhookRequest) (*WebhookResponse, error) {
	c.mu.Lock()
	c.stats.RequestsSent++
	c.mu.Unlock()

	startTime := time.Now()

	if err := c.validateRequest(request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	bodyBytes, err := encodeBody(request.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize body: %w", err)
	}

	var response *WebhookResponse
	var lastErr error

	maxAttempts := c.config.MaxRetries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.mu.Lock()
			c.stats.TotalRetries++
			c.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		httpReq, err := c.createHTTPRequest(ctx, request, bodyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP request: %w", err)
		}

		response, lastErr = c.executeRequest(httpReq)
		if lastErr == nil && response.Success {
			break
		}
	}

	responseTime := time.Since(startTime)
	c.mu.Lock()
	c.stats.TotalLatency += responseTime
	if response != nil && response.Success {
		c.stats.RequestsSucceeded++
		c.stats.StatusCodes[response.StatusCode]++
	} else {
		c.stats.RequestsFailed++
	}
	c.mu.Unlock()

	if response != nil {
		response.ResponseTime = responseTime
	}

	return response, lastErr
}

func (c *HTTPClient) validateRequest(request *WebhookRequest) error {
	if request == nil {
		return fmt.Errorf("request cannot be nil")
	}

	if request.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	if _, err := url.Parse(request.URL); err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if request.Method == "" {
		request.Method = "POST"
	}

	switch strings.ToUpper(request.Method) {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
	default:
		return fmt.Errorf("invalid HTTP method: %s", request.Method)
	}

	return nil
}

func encodeBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	switch v := body.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func (c *HTTPClient) createHTTPRequest(ctx context.Context, request *WebhookRequest, bodyBytes []byte) (*http.Request, error) {
	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(request.Method), request.URL, body)
	if err != nil {
		return nil, err
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	for key, value := range request.Headers {
		httpReq.Header.Set(key, value)
	}

	if request.ContentType != "" {
		httpReq.Header.Set("Content-Type", request.ContentType)
	}

	if bodyBytes != nil {
		httpReq.ContentLength = int64(len(bodyBytes))
	}

	return httpReq, nil
}

func (c *HTTPClient) executeRequest(httpReq *http.Request) (*WebhookResponse, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &WebhookResponse{
			Success: false,
			Error:   err.Error(),
		}, err
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, c.config.MaxResponseSize)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return &WebhookResponse{
			StatusCode: resp.StatusCode,
			Success:    false,
			Error:      fmt.Sprintf("failed to read response body: %v", err),
		}, err
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	response := &WebhookResponse{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Success:    success,
	}

	if !success {
		response.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return response, nil
}

// GetStats returns client statistics
func (c *HTTPClient) GetStats() *ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &ClientStats{
		RequestsSent:      c.stats.RequestsSent,
		RequestsSucceeded: c.stats.RequestsSucceeded,
		RequestsFailed:    c.stats.RequestsFailed,
		TotalRetries:      c.stats.TotalRetries,
		TotalLatency:      c.stats.TotalLatency,
		StatusCodes:       make(map[int]int64),
	}

	for code, count := range c.stats.StatusCodes {
		stats.StatusCodes[code] = count
	}

	return stats
}

// Close closes the HTTP client and cleans up resources
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
