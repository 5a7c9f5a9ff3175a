// Package automation drives a headless browser against job pages.
// Requires Chrome/Chromium to be installed on the system.
package automation

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/jonathan/applier/internal/application"
	"go.uber.org/zap"
)

// Options configures the browser
type Options struct {
	// Timeout bounds one page visit
	Timeout time.Duration
	// SettleDelay waits for client-side rendering after the body is ready
	SettleDelay time.Duration
	// Quality is the PNG screenshot quality passed to chromedp
	Quality int
}

// DefaultOptions returns the browser defaults
func DefaultOptions() Options {
	return Options{
		Timeout:     45 * time.Second,
		SettleDelay: 3 * time.Second,
		Quality:     90,
	}
}

// Browser captures job pages with chromedp
type Browser struct {
	opts   Options
	logger *zap.Logger
}

var _ application.Automation = (*Browser)(nil)

// NewBrowser creates a Browser
func NewBrowser(opts Options, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Quality <= 0 {
		opts.Quality = defaults.Quality
	}
	return &Browser{opts: opts, logger: logger}
}

// Screenshot navigates to pageURL and writes a full page PNG to path
func (b *Browser) Screenshot(ctx context.Context, pageURL, path string) error {
	if err := checkURL(pageURL); err != nil {
		return err
	}
	b.logger.Debug("capturing job page", zap.String("url", pageURL), zap.String("path", path))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 1024),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.opts.Timeout)
	defer cancel()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.opts.SettleDelay),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// cookie banners hide the listing; a missing button is fine
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			return nil
		}),
		chromedp.FullScreenshot(&buf, b.opts.Quality),
	)
	if err != nil {
		return fmt.Errorf("browser screenshot failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}

	b.logger.Info("captured job page", zap.String("path", path), zap.Int("bytes", len(buf)))
	return nil
}

func checkURL(pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &application.AutomationFailure{Reason: fmt.Sprintf("cannot capture %q: not an absolute http(s) URL", pageURL)}
	}
	return nil
}
