package common

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryInitial  = time.Second
	defaultRetryMaxDelay = 5 * time.Minute
	DefaultRetryAttempts = 10
)

func IsValidURL(input string) bool {
	_, err := url.ParseRequestURI(input)

	return err == nil
}

func DecodeHex(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}

	return hex.DecodeString(s)
}

func EncodeHex(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}

// RetryWithBackoff retries fn with capped exponential backoff and jitter.
// fn decides what is retryable by wrapping errors with retry.RetryableError.
func RetryWithBackoff(ctx context.Context, maxAttempts uint64, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(defaultRetryInitial)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithCappedDuration(defaultRetryMaxDelay, backoff)
	backoff = retry.WithMaxRetries(maxAttempts, backoff)

	return retry.Do(ctx, backoff, fn)
}

// HTTPGet fetches url and decodes the json body into T.
func HTTPGet[T any](ctx context.Context, url string) (T, error) {
	var result T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, err
	}

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return result, fmt.Errorf("request to %s failed: %w", url, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("request to %s returned %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	return result, nil
}

// RetryForever keeps calling fn until it succeeds or ctx is done.
func RetryForever(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
