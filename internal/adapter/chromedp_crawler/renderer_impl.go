package chromedp_crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
)

const defaultUserAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36`

var _ repository.Renderer = (*ChromedpRenderer)(nil)

// ChromedpRenderer loads script-rendered pages in headless Chrome and returns
// the resulting DOM. At most poolSize pages render at once.
type ChromedpRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	slots    chan struct{}
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChromedpRenderer starts a shared browser allocator.
func NewChromedpRenderer(poolSize int, pageLoadTimeout time.Duration, userAgent string, logger *zap.Logger) *ChromedpRenderer {
	if poolSize < 1 {
		poolSize = 1
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromedpRenderer{
		allocCtx: allocCtx,
		cancel:   cancel,
		slots:    make(chan struct{}, poolSize),
		timeout:  pageLoadTimeout,
		logger:   logger,
	}
}

// Close shuts the browser down.
func (c *ChromedpRenderer) Close() {
	c.cancel()
}

// Render navigates to url and returns the outer HTML once the body is ready.
// The main document's HTTP status is taken from the network domain.
func (c *ChromedpRenderer) Render(ctx context.Context, url string) ([]byte, error) {
	const op = "chromedp.render"
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	taskCtx, cancel := chromedp.NewContext(c.allocCtx, chromedp.WithLogf(c.logger.Sugar().Debugf))
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, c.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		mu     sync.Mutex
		status int64
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			mu.Lock()
			if status == 0 {
				status = e.Response.Status
			}
			mu.Unlock()
		}
	})

	startTime := time.Now()
	var html string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Network(op, fmt.Errorf("page load timed out after %s: %w", c.timeout, err))
		}
		return nil, apperr.Network(op, err)
	}

	mu.Lock()
	code := int(status)
	mu.Unlock()
	if code != 0 {
		if err := apperr.FromHTTPStatus(op, code); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("Rendered page",
		zap.String("url", url),
		zap.Int("status", code),
		zap.Int("bytes", len(html)),
		zap.Duration("elapsed", time.Since(startTime)))
	return []byte(html), nil
}
