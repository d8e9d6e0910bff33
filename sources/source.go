// Package sources pulls candidate topics from Reddit and X.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"auto_linkedin_poster/model"
)

// Source is one upstream content provider.
type Source interface {
	Name() model.Source
	Configured() bool
	Fetch(ctx context.Context) ([]model.Topic, error)
}

const (
	defaultHTTPTimeout = 30 * time.Second
	maxBodyBytes       = 4 << 20
	maxContentRunes    = 1000
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// client bundles the HTTP client with the limiter and breaker of one upstream.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newClient(name string, hc *http.Client, limiter *rate.Limiter) *client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &client{http: hc, limiter: limiter, breaker: gobreaker.NewCircuitBreaker(st)}
}

// do waits for a rate token, then runs the request through the breaker and returns the body.
func (c *client) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), 200)}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
