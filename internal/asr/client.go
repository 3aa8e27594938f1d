package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/audio"
)

// Client sends audio windows to the recognition engine over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains recognition client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Request carries one recognition window. Samples are 16 kHz mono float32;
// Prompt primes the decoder with the unfixed text from the previous cycle.
type Request struct {
	Samples  []float32
	Model    string
	Language string
	Prompt   string
}

// Response is the engine's result for one window.
type Response struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
	Duration float64   `json:"duration"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new recognition HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 2
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe sends one audio window for recognition. Segments whose
// confidence metrics fail the filter are dropped from the result.
func (c *Client) Transcribe(ctx context.Context, request *Request) (*Response, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 10*time.Second {
				backoffTime = 10 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.doRequest(ctx, request)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			response.Segments = filterSegments(response.Segments)
			return response, nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return nil, fmt.Errorf("recognition failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// filterSegments keeps only segments that pass the confidence filter.
func filterSegments(segments []Segment) []Segment {
	filtered := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Accepted() {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// doRequest performs a single HTTP request to the recognition engine
func (c *Client) doRequest(ctx context.Context, request *Request) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(request)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var res Response
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &res, nil
}

// createMultipartRequest encodes the window as a WAV form file plus fields.
func (c *Client) createMultipartRequest(request *Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "window.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	wav, err := audio.EncodeWAV(request.Samples, audio.SampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode window: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           request.Model,
		"response_format": "verbose_json",
	}
	if request.Language != "" {
		fields["language"] = request.Language
	}
	if request.Prompt != "" {
		fields["prompt"] = request.Prompt
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError determines if an error is retryable
func (c *Client) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors and rate limiting are retryable
	if strings.Contains(errStr, "HTTP error 5") {
		return true
	}
	if strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network/connection errors are typically retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for all in-flight requests to finish.
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}
