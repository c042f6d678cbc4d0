// Package wayback submits URLs to the Internet Archive's Save Page Now service
// and resolves the resulting captures.
package wayback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/adapter/breaker"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
)

// ErrSnapshotPending is returned by Resolve while a capture job is still running.
var ErrSnapshotPending = errors.New("snapshot capture pending")

// Snapshot ids are either an SPN2 job id or a direct capture reference.
const capturePrefix = "capture:"

var _ repository.ArchiveProvider = (*Client)(nil)

// Config holds the endpoint and the optional S3-style credentials. Without
// credentials the anonymous GET /save/<url> endpoint is used.
type Config struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
	// Acquire, when set, gates requests Submit makes beyond the capture
	// itself. The caller gates the capture request.
	Acquire func(ctx context.Context) error
}

// Client is a repository.ArchiveProvider for the Wayback Machine.
type Client struct {
	base    string
	auth    string
	http    *http.Client
	breaker *breaker.Breaker
	acquire func(ctx context.Context) error
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://web.archive.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	c := &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker.New(breaker.DefaultConfig("wayback"), logger),
		acquire: cfg.Acquire,
		logger:  logger,
	}
	if c.acquire == nil {
		c.acquire = func(context.Context) error { return nil }
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		c.auth = fmt.Sprintf("LOW %s:%s", cfg.AccessKey, cfg.SecretKey)
	}
	return c
}

type saveResponse struct {
	URL     string `json:"url"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	OriginalURL string `json:"original_url"`
	Message     string `json:"message"`
	StatusExt   string `json:"status_ext"`
}

type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Submit asks the archive to capture target. When the archive refuses the
// capture, an existing capture from the availability API is used instead.
func (c *Client) Submit(ctx context.Context, target string) (string, error) {
	const op = "wayback.submit"
	var id string
	err := c.breaker.Do(op, func() error {
		var err error
		if c.auth != "" {
			id, err = c.submitJob(ctx, target)
		} else {
			id, err = c.submitAnonymous(ctx, target)
		}
		return err
	})
	if err == nil {
		return id, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if kind := apperr.KindOf(err); kind != apperr.KindArchivalUnavailable && kind != apperr.KindQuota {
		return "", err
	}
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	existing, lookupErr := c.closest(ctx, target)
	if lookupErr != nil || existing == "" {
		return "", err
	}
	c.logger.Info("Using existing capture", zap.String("url", target), zap.String("snapshot", existing), zap.Error(err))
	return existing, nil
}

// submitJob starts an SPN2 capture job.
func (c *Client) submitJob(ctx context.Context, target string) (string, error) {
	const op = "wayback.save"
	form := url.Values{"url": {target}, "skip_first_archive": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/save", strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Validation(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.auth)

	var out saveResponse
	if err := c.do(op, req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", apperr.ArchivalUnavailable(op, fmt.Errorf("capture refused: %s", out.Message))
	}
	return out.JobID, nil
}

// submitAnonymous uses GET /save/<url>; the capture path comes back in Content-Location.
func (c *Client) submitAnonymous(ctx context.Context, target string) (string, error) {
	const op = "wayback.save"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/save/"+target, nil)
	if err != nil {
		return "", apperr.Validation(op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Network(op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if err := statusError(op, resp.StatusCode); err != nil {
		return "", err
	}

	loc := resp.Header.Get("Content-Location")
	if loc == "" {
		loc = resp.Request.URL.Path
	}
	ts, original, ok := parseCapturePath(loc)
	if !ok {
		return "", apperr.ArchivalUnavailable(op, fmt.Errorf("no capture location in response"))
	}
	return capturePrefix + ts + "/" + original, nil
}

// closest returns a capture reference for an existing snapshot, or "".
func (c *Client) closest(ctx context.Context, target string) (string, error) {
	const op = "wayback.available"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/wayback/available?url="+url.QueryEscape(target), nil)
	if err != nil {
		return "", err
	}
	var out availabilityResponse
	if err := c.do(op, req, &out); err != nil {
		return "", err
	}
	closest := out.ArchivedSnapshots.Closest
	if closest == nil || !closest.Available || closest.Status != "200" {
		return "", nil
	}
	return capturePrefix + closest.Timestamp + "/" + target, nil
}

// Resolve turns a snapshot id into the URI of the raw capture. A running job
// is a retryable network error.
func (c *Client) Resolve(ctx context.Context, snapshotID string) (string, error) {
	const op = "wayback.resolve"
	if ref, ok := strings.CutPrefix(snapshotID, capturePrefix); ok {
		ts, original, found := strings.Cut(ref, "/")
		if !found {
			return "", apperr.Validation(op, fmt.Errorf("malformed capture reference %q", snapshotID))
		}
		return c.rawURI(ts, original), nil
	}

	var out statusResponse
	err := c.breaker.Do(op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/save/status/"+url.PathEscape(snapshotID), nil)
		if err != nil {
			return apperr.Validation(op, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.auth != "" {
			req.Header.Set("Authorization", c.auth)
		}
		return c.do(op, req, &out)
	})
	if err != nil {
		return "", err
	}

	switch out.Status {
	case "success":
		return c.rawURI(out.Timestamp, out.OriginalURL), nil
	case "pending":
		return "", apperr.Network(op, ErrSnapshotPending)
	default:
		return "", apperr.ArchivalUnavailable(op, fmt.Errorf("capture %s: %s %s", out.Status, out.StatusExt, out.Message))
	}
}

// rawURI addresses the original bytes of a capture, without the archive toolbar.
func (c *Client) rawURI(timestamp, original string) string {
	return fmt.Sprintf("%s/web/%sid_/%s", c.base, timestamp, original)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return apperr.Network(op, err)
	}
	defer resp.Body.Close()
	if err := statusError(op, resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return apperr.Network(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError maps archive responses: 429 is quota, 5xx transient (520 and
// 523 are the archive refusing a capture), other 4xx are final.
func statusError(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return apperr.Quota(op, fmt.Errorf("archive throttled (status %d)", status))
	case status == 520 || status == 523:
		return apperr.ArchivalUnavailable(op, fmt.Errorf("archive refused capture (status %d)", status))
	case status >= 500:
		return apperr.Network(op, fmt.Errorf("archive unavailable (status %d)", status))
	default:
		return apperr.ArchivalUnavailable(op, fmt.Errorf("archive rejected request (status %d)", status))
	}
}

// parseCapturePath splits "/web/20260302090000/https://example.gov/x" into
// the timestamp and the original URL.
func parseCapturePath(p string) (string, string, bool) {
	rest, ok := strings.CutPrefix(p, "/web/")
	if !ok {
		return "", "", false
	}
	ts, original, ok := strings.Cut(rest, "/")
	if !ok || ts == "" || original == "" {
		return "", "", false
	}
	return ts, original, true
}
