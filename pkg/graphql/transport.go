// Package graphql implements the Admin API transport: document registry,
// single-call execution with throttle backoff, and cursor pagination.
package graphql

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/backoff"
	"github.com/storekit-io/shopbulk/pkg/clients"
	"github.com/storekit-io/shopbulk/pkg/errors"
	"github.com/storekit-io/shopbulk/pkg/jsonx"
	"github.com/storekit-io/shopbulk/pkg/metrics"
)

// Transport executes GraphQL documents against the Admin API.
// Throttled responses are retried with exponential backoff up to the policy
// ceiling; every other reported error surfaces immediately.
type Transport struct {
	endpoint string
	token    string
	http     *clients.HTTPClient
	retry    *backoff.RetryPolicy
	logger   *zap.Logger

	// sleep is swappable so backoff behavior is testable without real time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTransport creates an authenticated transport for the given endpoint
func NewTransport(endpoint, token string, httpClient *clients.HTTPClient, retry *backoff.RetryPolicy, logger *zap.Logger) *Transport {
	if retry == nil {
		retry = backoff.ThrottlePolicy()
	}
	return &Transport{
		endpoint: endpoint,
		token:    token,
		http:     httpClient,
		retry:    retry,
		logger:   logger.With(zap.String("component", "graphql_transport")),
		sleep:    sleepContext,
	}
}

// graphqlRequest is the POST body for a GraphQL call
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphqlError is one entry of the response "errors" array
type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// graphqlResponse is the full response envelope
type graphqlResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []graphqlError         `json:"errors"`
}

// Execute runs a single document and returns the response data.
// doc.Name labels logs and metrics; it never changes the request.
func (t *Transport) Execute(ctx context.Context, doc Document, variables map[string]interface{}) (map[string]interface{}, error) {
	for attempt := 0; attempt < t.retry.MaxAttempts; attempt++ {
		data, throttled, err := t.executeOnce(ctx, doc, variables)
		if err != nil {
			metrics.GraphQLRequests.WithLabelValues(doc.Name, "error").Inc()
			return nil, err
		}
		if !throttled {
			metrics.GraphQLRequests.WithLabelValues(doc.Name, "ok").Inc()
			return data, nil
		}

		if attempt == t.retry.MaxAttempts-1 {
			break
		}

		delay := t.retry.AttemptDelay(attempt)
		metrics.ThrottleRetries.WithLabelValues(doc.Name).Inc()
		t.logger.Warn("API throttled, backing off",
			zap.String("operation", doc.Name),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", t.retry.MaxAttempts))

		if err := t.sleep(ctx, delay); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTransport, "backoff interrupted")
		}
	}

	metrics.GraphQLRequests.WithLabelValues(doc.Name, "rate_limited").Inc()
	return nil, errors.Newf(errors.ErrorTypeRateLimited,
		"operation %s still throttled after %d attempts", doc.Name, t.retry.MaxAttempts)
}

// executeOnce performs one round trip. The bool result reports throttling.
func (t *Transport) executeOnce(ctx context.Context, doc Document, variables map[string]interface{}) (map[string]interface{}, bool, error) {
	body := jsonx.GetBuffer()
	defer jsonx.PutBuffer(body)

	if err := jsonx.MarshalToWriter(body, graphqlRequest{Query: doc.Body, Variables: variables}); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeInternal, "encoding GraphQL request")
	}

	headers := map[string]string{
		"Content-Type":           "application/json",
		"X-Shopify-Access-Token": t.token,
	}

	resp, err := t.http.Post(ctx, t.endpoint, body, headers)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeTransport, "executing GraphQL request")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	// 429 means the HTTP layer throttled before GraphQL ran
	if resp.StatusCode == 429 {
		return nil, true, nil
	}
	if resp.StatusCode != 200 {
		return nil, false, errors.Newf(errors.ErrorTypeTransport, "GraphQL endpoint returned status %d", resp.StatusCode)
	}

	var decoded graphqlResponse
	if err := jsonx.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeTransport, "decoding GraphQL response")
	}

	if len(decoded.Errors) > 0 {
		if isThrottled(decoded.Errors) {
			return nil, true, nil
		}
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, false, errors.Newf(errors.ErrorTypeQuery, "GraphQL query failed: %s", strings.Join(msgs, "; ")).
			WithDetail("operation", doc.Name)
	}

	return decoded.Data, false, nil
}

// isThrottled reports whether any reported error is a throttling error
func isThrottled(errs []graphqlError) bool {
	for _, e := range errs {
		if e.Extensions.Code == "THROTTLED" || strings.Contains(strings.ToLower(e.Message), "throttled") {
			return true
		}
	}
	return false
}

// sleepContext sleeps for d or until the context is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
