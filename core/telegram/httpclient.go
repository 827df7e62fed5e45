package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/editbot/core/telegram/netutil"
)

// Timeouts leave headroom for long-poll getUpdates requests, which hold
// the connection open for the configured polling interval.
const (
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 5 * time.Second
	idleConnTimeout       = 30 * time.Second
	responseHeaderTimeout = 65 * time.Second
	clientTimeout         = 90 * time.Second
	keepAliveInterval     = 30 * time.Second

	transportRetries      = 3
	transportRetryBackoff = 2 * time.Second
)

// buildHTTPClient returns the client telebot uses for all Bot API calls,
// with transparent retries on transient network failures.
func buildHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: keepAliveInterval,
	}
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &retryRoundTripper{
			next: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       idleConnTimeout,
				TLSHandshakeTimeout:   tlsHandshakeTimeout,
				ResponseHeaderTimeout: responseHeaderTimeout,
				ExpectContinueTimeout: time.Second,
			},
			retries: transportRetries,
			backoff: transportRetryBackoff,
		},
	}
}

// retryRoundTripper retries transient network failures with linear backoff.
// Requests whose body cannot be replayed are attempted once.
type retryRoundTripper struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		attemptReq, err := t.requestForAttempt(req, attempt)
		if err != nil {
			return nil, err
		}
		if attemptReq == nil {
			break
		}

		resp, err := t.next.RoundTrip(attemptReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == t.retries {
			break
		}
		if err := sleepCtx(req, t.backoff*time.Duration(attempt+1)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// requestForAttempt returns the request to send, cloning and rewinding the
// body on retries. A nil request means the body cannot be replayed.
func (t *retryRoundTripper) requestForAttempt(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 {
		return req, nil
	}
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
		return clone, nil
	}
	if req.Body != nil {
		return nil, nil
	}
	return clone, nil
}

func sleepCtx(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
