package engine

import (
	"fmt"
	"strings"
	"time"

	"renderwatch/internal/core/job"

	"github.com/playwright-community/playwright-go"
)

// Surface is an isolated, interactive view of loaded content, exclusive
// to one job. It narrows the driver API to exactly the operations the
// execution engine consumes, so the engine can be exercised against a
// fake in tests.
type Surface interface {
	SetViewport(width, height int) error
	SetExtraHeaders(headers map[string]string) error
	SetDefaultTimeout(d time.Duration)

	Navigate(url string, policy job.WaitPolicy, timeout time.Duration) error
	SetHTML(html string, policy job.WaitPolicy, timeout time.Duration) error

	WaitForSelector(selector string, timeout time.Duration) error
	Click(selector string, timeout time.Duration) error
	Hover(selector string, timeout time.Duration) error
	Fill(selector, text string, timeout time.Duration) error
	Press(selector, key string, timeout time.Duration) error
	ClickAt(x, y float64) error
	Evaluate(expression string, args ...interface{}) (interface{}, error)

	Count(selector string) (int, error)
	TextContent(selector string, nth int, timeout time.Duration) (string, error)
	Attribute(selector string, nth int, name string, timeout time.Duration) (string, error)
	InnerHTML(selector string, nth int, timeout time.Duration) (string, error)

	Content() (string, error)
	Screenshot(fullSurface bool) ([]byte, error)
	ElementScreenshot(selector string, timeout time.Duration) ([]byte, error)

	OnConsole(fn func(job.ConsoleEvent))
	OnNetwork(fn func(job.NetworkEvent))
}

type pwSurface struct {
	page playwright.Page
}

func (s *pwSurface) SetViewport(width, height int) error {
	return s.page.SetViewportSize(width, height)
}

func (s *pwSurface) SetExtraHeaders(headers map[string]string) error {
	return s.page.SetExtraHTTPHeaders(headers)
}

func (s *pwSurface) SetDefaultTimeout(d time.Duration) {
	s.page.SetDefaultTimeout(ms(d))
}

func (s *pwSurface) Navigate(url string, policy job.WaitPolicy, timeout time.Duration) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil(policy),
		Timeout:   playwright.Float(ms(timeout)),
	})
	if err != nil {
		if isTimeout(err) {
			return &job.TimeoutError{Op: "navigation", Err: err}
		}
		return &job.NavigationError{URL: url, Err: err}
	}
	s.settle(policy, timeout)
	return nil
}

func (s *pwSurface) SetHTML(html string, policy job.WaitPolicy, timeout time.Duration) error {
	err := s.page.SetContent(html, playwright.PageSetContentOptions{
		WaitUntil: waitUntil(policy),
		Timeout:   playwright.Float(ms(timeout)),
	})
	if err != nil {
		if isTimeout(err) {
			return &job.TimeoutError{Op: "content injection", Err: err}
		}
		return &job.NavigationError{URL: "about:blank", Err: err}
	}
	s.settle(policy, timeout)
	return nil
}

// settle gives the long network-quiet policy an extra idle window after
// the initial completion signal, best-effort.
func (s *pwSurface) settle(policy job.WaitPolicy, timeout time.Duration) {
	if policy != job.WaitNetQuietLong {
		return
	}
	settleTimeout := 5000.0
	if ms(timeout) < settleTimeout {
		settleTimeout = ms(timeout)
	}
	s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(settleTimeout),
	})
}

func (s *pwSurface) WaitForSelector(selector string, timeout time.Duration) error {
	err := s.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return classifyWait("selector wait", err)
}

func (s *pwSurface) Click(selector string, timeout time.Duration) error {
	err := s.page.Locator(selector).Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return classifyWait("click", err)
}

func (s *pwSurface) Hover(selector string, timeout time.Duration) error {
	err := s.page.Locator(selector).Hover(playwright.LocatorHoverOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return classifyWait("hover", err)
}

func (s *pwSurface) Fill(selector, text string, timeout time.Duration) error {
	err := s.page.Locator(selector).Fill(text, playwright.LocatorFillOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return classifyWait("type", err)
}

func (s *pwSurface) Press(selector, key string, timeout time.Duration) error {
	err := s.page.Locator(selector).Press(key, playwright.LocatorPressOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return classifyWait("key press", err)
}

func (s *pwSurface) ClickAt(x, y float64) error {
	return s.page.Mouse().Click(x, y)
}

func (s *pwSurface) Evaluate(expression string, args ...interface{}) (interface{}, error) {
	if len(args) > 0 {
		return s.page.Evaluate(expression, args[0])
	}
	return s.page.Evaluate(expression)
}

func (s *pwSurface) Count(selector string) (int, error) {
	return s.page.Locator(selector).Count()
}

func (s *pwSurface) TextContent(selector string, nth int, timeout time.Duration) (string, error) {
	return s.page.Locator(selector).Nth(nth).TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
}

func (s *pwSurface) Attribute(selector string, nth int, name string, timeout time.Duration) (string, error) {
	return s.page.Locator(selector).Nth(nth).GetAttribute(name, playwright.LocatorGetAttributeOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
}

func (s *pwSurface) InnerHTML(selector string, nth int, timeout time.Duration) (string, error) {
	return s.page.Locator(selector).Nth(nth).InnerHTML(playwright.LocatorInnerHTMLOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
}

func (s *pwSurface) Content() (string, error) {
	return s.page.Content()
}

func (s *pwSurface) Screenshot(fullSurface bool) ([]byte, error) {
	buf, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullSurface),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("screenshot capture resulted in empty image")
	}
	return buf, nil
}

func (s *pwSurface) ElementScreenshot(selector string, timeout time.Duration) ([]byte, error) {
	buf, err := s.page.Locator(selector).Screenshot(playwright.LocatorScreenshotOptions{
		Timeout: playwright.Float(ms(timeout)),
		Type:    playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, classifyWait("element snapshot", err)
	}
	return buf, nil
}

func (s *pwSurface) OnConsole(fn func(job.ConsoleEvent)) {
	s.page.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(job.ConsoleEvent{
			Ts:   time.Now().UnixMilli(),
			Type: msg.Type(),
			Text: msg.Text(),
		})
	})
}

func (s *pwSurface) OnNetwork(fn func(job.NetworkEvent)) {
	s.page.OnRequest(func(req playwright.Request) {
		fn(job.NetworkEvent{
			Ts:     time.Now().UnixMilli(),
			Phase:  "request",
			Method: req.Method(),
			URL:    req.URL(),
		})
	})
	s.page.OnResponse(func(res playwright.Response) {
		fn(job.NetworkEvent{
			Ts:     time.Now().UnixMilli(),
			Phase:  "response",
			URL:    res.URL(),
			Status: res.Status(),
		})
	})
}

func waitUntil(policy job.WaitPolicy) *playwright.WaitUntilState {
	switch policy {
	case job.WaitFirstPaint:
		return playwright.WaitUntilStateLoad
	case job.WaitNetQuietShort, job.WaitNetQuietLong:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateDomcontentloaded
	}
}

func classifyWait(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return &job.TimeoutError{Op: op, Err: err}
	}
	return err
}

func isTimeout(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func ms(d time.Duration) float64 { return float64(d.Milliseconds()) }
