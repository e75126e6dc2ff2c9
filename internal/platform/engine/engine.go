package engine

import (
	"fmt"

	"renderwatch/internal/logger"

	"github.com/playwright-community/playwright-go"
)

// Engine owns the single shared browser instance for the process. Jobs
// never touch its global configuration; each job gets an exclusive
// surface via Acquire.
type Engine struct {
	log     *logger.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	failed  chan error
}

// ContextOptions carries per-context configuration applied at creation.
type ContextOptions struct {
	UserAgent      string
	Headers        map[string]string
	ViewportWidth  int
	ViewportHeight int
}

// SessionContext is the slice of a browsing context the rest of the
// system needs: surface creation and shutdown.
type SessionContext interface {
	NewPage() (playwright.Page, error)
	Close(options ...playwright.BrowserContextCloseOptions) error
}

// Launch starts the driver and one headless browser. A launch failure is
// fatal at startup; a later disconnect surfaces on Failed().
func Launch() (*Engine, error) {
	e := &Engine{log: logger.New("Engine"), failed: make(chan error, 1)}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright initialization failed: %w", err)
	}
	e.pw = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--disable-blink-features=AutomationControlled",
			"--no-first-run",
			"--disable-default-apps",
			"--disable-extensions",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("browser launch failed: %w", err)
	}
	e.browser = browser

	browser.OnDisconnected(func(playwright.Browser) {
		select {
		case e.failed <- fmt.Errorf("browser disconnected"):
		default:
		}
	})

	e.log.LogInfof("engine up: %s %s", browser.BrowserType().Name(), browser.Version())
	return e, nil
}

// Failed delivers at most one engine-fatal error. The engine is not
// per-job recoverable; the process must restart.
func (e *Engine) Failed() <-chan error { return e.failed }

func (e *Engine) Connected() bool { return e.browser.IsConnected() }

// NewContext creates an isolated browsing context. Used directly for
// session contexts, which outlive any single job.
func (e *Engine) NewContext(opts ContextOptions) (SessionContext, error) {
	ctx, err := e.browser.NewContext(e.contextOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("browser context creation failed: %w", err)
	}
	return ctx, nil
}

// Acquire creates a fresh surface for one job. When session is non-nil
// the page lives inside that shared context; otherwise a transient
// context is created and torn down with the page. The returned release
// function is safe to call exactly once on every exit path.
func (e *Engine) Acquire(session SessionContext, opts ContextOptions) (Surface, func(), error) {
	ownCtx := (SessionContext)(nil)
	target := session
	if target == nil {
		ctx, err := e.NewContext(opts)
		if err != nil {
			return nil, nil, err
		}
		ownCtx = ctx
		target = ctx
	}

	page, err := target.NewPage()
	if err != nil {
		if ownCtx != nil {
			_ = ownCtx.Close()
		}
		return nil, nil, fmt.Errorf("page creation failed: %w", err)
	}

	release := func() {
		if err := page.Close(); err != nil {
			e.log.LogWarnf("page close: %v", err)
		}
		if ownCtx != nil {
			if err := ownCtx.Close(); err != nil {
				e.log.LogWarnf("context close: %v", err)
			}
		}
	}
	return &pwSurface{page: page}, release, nil
}

func (e *Engine) contextOptions(opts ContextOptions) playwright.BrowserNewContextOptions {
	co := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		co.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	if opts.UserAgent != "" {
		co.UserAgent = playwright.String(opts.UserAgent)
	}
	if len(opts.Headers) > 0 {
		co.ExtraHttpHeaders = opts.Headers
	}
	return co
}

// Close tears down the browser and the driver.
func (e *Engine) Close() error {
	if err := e.browser.Close(); err != nil {
		e.log.LogWarnf("browser close: %v", err)
	}
	return e.pw.Stop()
}
