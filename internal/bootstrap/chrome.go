package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
)

const defaultChromeTimeout = 30 * time.Second

// ChromeFetcher renders pages in headless Chrome and returns the live DOM.
// Use it when the token is only present after client-side rendering.
type ChromeFetcher struct {
	baseURL     string
	timeout     time.Duration
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeFetcher creates the browser allocator. Chrome itself starts on the
// first Fetch.
func NewChromeFetcher(baseURL string, cfg config.ChromeConfig, l *zap.Logger) *ChromeFetcher {
	if l == nil {
		l = zap.NewNop()
	}
	f := &ChromeFetcher{
		baseURL: baseURL,
		timeout: cfg.Timeout,
		logger:  l.Named("chrome"),
	}
	if f.timeout == 0 {
		f.timeout = defaultChromeTimeout
	}

	if cfg.RemoteURL != "" {
		f.allocCtx, f.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return f
	}

	headless := cfg.Headless == nil || *cfg.Headless
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	f.allocCtx, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return f
}

// Fetch sets cookies for the target, navigates to path and returns outerHTML.
func (f *ChromeFetcher) Fetch(ctx context.Context, path string, cookies map[string]string) (string, error) {
	browserCtx, browserCancel := chromedp.NewContext(f.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			f.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, f.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for name, value := range cookies {
				if err := network.SetCookie(name, value).WithURL(f.baseURL).Do(ctx); err != nil {
					return fmt.Errorf("setting cookie %s: %w", name, err)
				}
			}
			return nil
		}),
		chromedp.Navigate(f.baseURL+path),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("bootstrap: rendering %s timed out after %v: %w", path, f.timeout, err)
		}
		return "", fmt.Errorf("bootstrap: rendering %s: %w", path, err)
	}

	f.logger.Debug("page rendered", zap.String("path", path), zap.Int("bytes", len(html)))
	return html, nil
}

// Close shuts the browser down.
func (f *ChromeFetcher) Close() {
	if f.allocCancel != nil {
		f.allocCancel()
	}
}
