package coredata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

// doGetJSON performs a GET request and unmarshals the JSON response into the
// result type. The endpoint is the path after the base URL
// (e.g. "notifications/alert-rules").
func doGetJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodGet, endpoint, nil, http.StatusOK)
}

// doPostJSON performs a POST request that accepts either 200 OK or 201 Created.
func doPostJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodPost, endpoint, requestBody, http.StatusOK, http.StatusCreated)
}

// doPutJSON performs a PUT request with a JSON body and unmarshals the JSON
// response.
func doPutJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodPut, endpoint, requestBody, http.StatusOK)
}

// doDeleteJSON performs a DELETE request and unmarshals the JSON response.
func doDeleteJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodDelete, endpoint, nil, http.StatusOK)
}

// doRequestJSON is the internal helper that performs HTTP requests with JSON
// body and response, retrying on transport failure and 5xx answers. The
// request body is marshaled once and replayed on each attempt.
func doRequestJSON[T any](ctx context.Context, c *Client, method, endpoint string, requestBody any, expectedStatuses ...int) (*T, error) {
	var jsonBody []byte
	if requestBody != nil {
		var err error
		jsonBody, err = json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
	}

	body, err := c.doWithRetry(ctx, method, endpoint, jsonBody, expectedStatuses)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// doRequestRaw performs an HTTP request, discarding the response body.
func doRequestRaw(ctx context.Context, c *Client, method, endpoint string, requestBody any) error {
	var jsonBody []byte
	if requestBody != nil {
		var err error
		jsonBody, err = json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
	}
	_, err := c.doWithRetry(ctx, method, endpoint, jsonBody, []int{http.StatusOK, http.StatusCreated})
	return err
}

// doWithRetry runs the attempt loop. A 404 maps to ErrNotFound and any other
// 4xx to a terminal APIError; transport failures and 5xx answers are retried
// with a backoff of retryDelay * attempt, and exhaustion fails with
// ErrUpstreamUnavailable wrapping the last failure.
func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, jsonBody []byte, expectedStatuses []int) ([]byte, error) {
	url := c.resolveURL(endpoint)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay * time.Duration(attempt-1)
			c.logger.Warn("core data request retrying",
				"method", method,
				"endpoint", endpoint,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctx.Err())
			}
		}

		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("could not create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctx.Err())
			}
			lastErr = fmt.Errorf("could not send request: %w", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case slices.Contains(expectedStatuses, resp.StatusCode):
			if readErr != nil {
				return nil, fmt.Errorf("could not read response body: %w", readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, endpoint)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, newAPIError(resp.StatusCode, body)
		default:
			lastErr = newAPIError(resp.StatusCode, body)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUpstreamUnavailable, c.maxRetries, lastErr)
}

// newAPIError parses the record store's structured error payload; a body that
// is not the expected shape is carried verbatim in the message.
func newAPIError(statusCode int, body []byte) *APIError {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return &APIError{
			StatusCode: statusCode,
			Kind:       parsed.ErrorKind,
			Message:    parsed.Message,
			Details:    parsed.Details,
		}
	}
	return &APIError{
		StatusCode: statusCode,
		Message:    string(body),
	}
}
