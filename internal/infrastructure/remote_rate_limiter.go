package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RemoteRateLimiter drives a Redis-compatible REST counter (Upstash shape):
// INCR to count, PEXPIRE to bound the window, PTTL to compute retry time on
// the deny path. Any transport or response-shape failure is returned as an
// error so the caller can fall back; it is never translated into a deny.
type RemoteRateLimiter struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewRemoteRateLimiter(baseURL, token string) *RemoteRateLimiter {
	return &RemoteRateLimiter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

var errRemoteUnavailable = errors.New("remote rate limiter unavailable")

func (rl *RemoteRateLimiter) Consume(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateLimitResult, error) {
	count, err := rl.command(ctx, "incr/"+url.PathEscape(key))
	if err != nil {
		return RateLimitResult{}, err
	}
	if count <= 0 {
		return RateLimitResult{}, fmt.Errorf("%w: bad incr result %d", errRemoteUnavailable, count)
	}

	if count == 1 {
		// First hit in the window owns the expiry.
		if _, err := rl.command(ctx, fmt.Sprintf("pexpire/%s/%d", url.PathEscape(key), window.Milliseconds())); err != nil {
			return RateLimitResult{}, err
		}
		return RateLimitResult{OK: true}, nil
	}

	if count > int64(limit) {
		retryAfter := 1
		if pttl, err := rl.command(ctx, "pttl/"+url.PathEscape(key)); err == nil && pttl > 0 {
			retryAfter = int((pttl + 999) / 1000)
		} else if window > 0 {
			remaining := window - time.Since(now)
			if remaining > 0 {
				retryAfter = int((remaining + time.Second - 1) / time.Second)
			}
		}
		if retryAfter < 1 {
			retryAfter = 1
		}
		return RateLimitResult{OK: false, RetryAfterSeconds: retryAfter}, nil
	}

	return RateLimitResult{OK: true}, nil
}

func (rl *RemoteRateLimiter) command(ctx context.Context, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rl.baseURL+"/"+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+rl.token)

	resp, err := rl.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", errRemoteUnavailable, resp.StatusCode)
	}

	var body struct {
		Result int64 `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: %v", errRemoteUnavailable, err)
	}
	return body.Result, nil
}

// RateLimiter composes the remote shared counter with the in-process
// fallback. The remote counter is always preferred when reachable; any
// failure degrades transparently to single-instance limiting for that call.
type RateLimiter struct {
	remote *RemoteRateLimiter
	local  *LocalRateLimiter
	log    *zap.Logger
}

func NewRateLimiter(remote *RemoteRateLimiter, local *LocalRateLimiter, log *zap.Logger) *RateLimiter {
	return &RateLimiter{remote: remote, local: local, log: log}
}

// Consume never returns an error: a deny is a normal result and limiter
// unavailability falls back to the local counter.
func (rl *RateLimiter) Consume(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := time.Now()
	if rl.remote != nil {
		result, err := rl.remote.Consume(ctx, key, limit, window, now)
		if err == nil {
			return result
		}
		rl.log.Warn("rate limit: remote counter unavailable, using local fallback",
			zap.String("key", key), zap.Error(err))
	}
	return rl.local.Consume(key, limit, window, now)
}

// ClientIP extracts the originating client address from proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	return "unknown"
}
