package exec

import (
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"renderwatch/internal/core/job"
	"renderwatch/internal/platform/engine"
)

// fakeSurface is a scriptable engine.Surface for executor tests. Zero
// value behaves like an empty page; tests override the fields they need.
type fakeSurface struct {
	mu    sync.Mutex
	calls []string

	navErr     error
	actionErrs map[string]error // keyed "click:#sel", "fill:#sel", ...

	evalFn func(expr string, args ...interface{}) (interface{}, error)

	content    string
	contentErr error
	shot       []byte
	shotErr    error

	counts map[string]int
	texts  map[string]string
	attrs  map[string]string
	inner  map[string]string
}

func (f *fakeSurface) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSurface) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSurface) actionErr(key string) error {
	if f.actionErrs == nil {
		return nil
	}
	return f.actionErrs[key]
}

func (f *fakeSurface) SetViewport(w, h int) error {
	f.record(fmt.Sprintf("viewport:%dx%d", w, h))
	return nil
}

func (f *fakeSurface) SetExtraHeaders(headers map[string]string) error {
	f.record("headers")
	return nil
}

func (f *fakeSurface) SetDefaultTimeout(d time.Duration) { f.record("default_timeout") }

func (f *fakeSurface) Navigate(url string, policy job.WaitPolicy, timeout time.Duration) error {
	f.record("navigate:" + url)
	return f.navErr
}

func (f *fakeSurface) SetHTML(html string, policy job.WaitPolicy, timeout time.Duration) error {
	f.record("set_html")
	return f.navErr
}

func (f *fakeSurface) WaitForSelector(sel string, timeout time.Duration) error {
	f.record("wait_selector:" + sel)
	return f.actionErr("wait_selector:" + sel)
}

func (f *fakeSurface) Click(sel string, timeout time.Duration) error {
	f.record("click:" + sel)
	return f.actionErr("click:" + sel)
}

func (f *fakeSurface) Hover(sel string, timeout time.Duration) error {
	f.record("hover:" + sel)
	return f.actionErr("hover:" + sel)
}

func (f *fakeSurface) Fill(sel, text string, timeout time.Duration) error {
	f.record("fill:" + sel)
	return f.actionErr("fill:" + sel)
}

func (f *fakeSurface) Press(sel, key string, timeout time.Duration) error {
	f.record("press:" + sel + ":" + key)
	return f.actionErr("press:" + sel)
}

func (f *fakeSurface) ClickAt(x, y float64) error {
	f.record(fmt.Sprintf("click_at:%.0f,%.0f", x, y))
	return nil
}

func (f *fakeSurface) Evaluate(expr string, args ...interface{}) (interface{}, error) {
	f.record("evaluate")
	if f.evalFn != nil {
		return f.evalFn(expr, args...)
	}
	return nil, nil
}

func (f *fakeSurface) Count(sel string) (int, error) {
	if f.counts == nil {
		return 0, nil
	}
	return f.counts[sel], nil
}

func (f *fakeSurface) TextContent(sel string, nth int, timeout time.Duration) (string, error) {
	return f.texts[sel], nil
}

func (f *fakeSurface) Attribute(sel string, nth int, name string, timeout time.Duration) (string, error) {
	return f.attrs[sel+"@"+name], nil
}

func (f *fakeSurface) InnerHTML(sel string, nth int, timeout time.Duration) (string, error) {
	return f.inner[sel], nil
}

func (f *fakeSurface) Content() (string, error) { return f.content, f.contentErr }

func (f *fakeSurface) Screenshot(fullSurface bool) ([]byte, error) {
	f.record(fmt.Sprintf("screenshot:full=%v", fullSurface))
	return f.shot, f.shotErr
}

func (f *fakeSurface) ElementScreenshot(sel string, timeout time.Duration) ([]byte, error) {
	f.record("element_screenshot:" + sel)
	if err := f.actionErr("element_screenshot:" + sel); err != nil {
		return nil, err
	}
	return f.shot, nil
}

func (f *fakeSurface) OnConsole(fn func(job.ConsoleEvent)) { f.record("on_console") }
func (f *fakeSurface) OnNetwork(fn func(job.NetworkEvent)) { f.record("on_network") }

// fakeProvider hands out one fixed surface and tracks release.
type fakeProvider struct {
	surface    *fakeSurface
	acquireErr error

	mu       sync.Mutex
	released int
	lastCtx  engine.SessionContext
}

func (p *fakeProvider) Acquire(session engine.SessionContext, opts engine.ContextOptions) (engine.Surface, func(), error) {
	p.mu.Lock()
	p.lastCtx = session
	p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, nil, p.acquireErr
	}
	return p.surface, func() {
		p.mu.Lock()
		p.released++
		p.mu.Unlock()
	}, nil
}

func (p *fakeProvider) releaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

type fakeSessionContext struct{}

func (fakeSessionContext) NewPage() (playwright.Page, error) { return nil, nil }
func (fakeSessionContext) Close(options ...playwright.BrowserContextCloseOptions) error {
	return nil
}

// fakeResolver maps every id to one shared fake context.
type fakeResolver struct {
	err    error
	ctx    engine.SessionContext
	lastID string
}

func (r *fakeResolver) GetOrCreate(id string) (engine.SessionContext, error) {
	r.lastID = id
	if r.err != nil {
		return nil, r.err
	}
	if r.ctx == nil {
		r.ctx = fakeSessionContext{}
	}
	return r.ctx, nil
}
