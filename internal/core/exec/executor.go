package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"renderwatch/internal/core/job"
	"renderwatch/internal/core/output"
	"renderwatch/internal/logger"
	"renderwatch/internal/platform/engine"
	"renderwatch/internal/utils/markdown"
)

// SurfaceProvider hands out exclusive rendering surfaces.
type SurfaceProvider interface {
	Acquire(session engine.SessionContext, opts engine.ContextOptions) (engine.Surface, func(), error)
}

// SessionResolver maps a session id to its shared browsing context.
type SessionResolver interface {
	GetOrCreate(id string) (engine.SessionContext, error)
}

// Options tune execution-wide limits.
type Options struct {
	// MaxPostLoadDelay is the hard ceiling on a job's requested
	// post-load delay, bounding worst-case surface hold time.
	MaxPostLoadDelay time.Duration
	// PollInterval paces wait_expr and wait_paint polling.
	PollInterval time.Duration
}

// Executor runs one job end-to-end against an acquired surface: load,
// action sequence, primary artifacts, extractions. No error or panic
// escapes Execute; the result carries the failure.
type Executor struct {
	log      *logger.Logger
	surfaces SurfaceProvider
	sessions SessionResolver
	opts     Options
}

func NewExecutor(surfaces SurfaceProvider, sessions SessionResolver, opts Options) *Executor {
	if opts.MaxPostLoadDelay <= 0 {
		opts.MaxPostLoadDelay = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Executor{
		log:      logger.New("Executor"),
		surfaces: surfaces,
		sessions: sessions,
		opts:     opts,
	}
}

// Execute runs the job and returns its result and artifact set.
func (e *Executor) Execute(ctx context.Context, j job.Job) (job.JobResult, output.ArtifactSet) {
	started := time.Now()
	art := output.ArtifactSet{}

	err := e.run(ctx, j, &art)

	ended := time.Now()
	res := job.JobResult{
		OK:         err == nil,
		StartedAt:  started.UnixMilli(),
		EndedAt:    ended.UnixMilli(),
		DurationMs: ended.Sub(started).Milliseconds(),
	}
	if err != nil {
		res.Err = err.Error()
		e.log.LogWarnf("job %s failed after %dms: %v", j.ID, res.DurationMs, err)
	} else {
		e.log.LogInfof("job %s completed in %dms", j.ID, res.DurationMs)
	}
	return res, art
}

func (e *Executor) run(ctx context.Context, j job.Job, art *output.ArtifactSet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()

	var sessionCtx engine.SessionContext
	if j.SessionID != "" {
		sessionCtx, err = e.sessions.GetOrCreate(j.SessionID)
		if err != nil {
			return fmt.Errorf("session context %q: %w", j.SessionID, err)
		}
	}

	sf, release, err := e.surfaces.Acquire(sessionCtx, engine.ContextOptions{
		UserAgent:      j.Render.UserAgent,
		Headers:        j.Render.Headers,
		ViewportWidth:  j.Render.ViewportWidth,
		ViewportHeight: j.Render.ViewportHeight,
	})
	if err != nil {
		return fmt.Errorf("surface acquisition failed: %w", err)
	}
	defer release()

	e.configure(sf, j, sessionCtx != nil)

	var consoleMu sync.Mutex
	if j.Diag.Console {
		art.Console = []job.ConsoleEvent{}
		sf.OnConsole(func(ev job.ConsoleEvent) {
			consoleMu.Lock()
			art.Console = append(art.Console, ev)
			consoleMu.Unlock()
		})
	}
	if j.Diag.Network {
		art.Network = []job.NetworkEvent{}
		sf.OnNetwork(func(ev job.NetworkEvent) {
			consoleMu.Lock()
			art.Network = append(art.Network, ev)
			consoleMu.Unlock()
		})
	}

	navTimeout := time.Duration(j.Render.TimeoutMs) * time.Millisecond
	if j.Kind == job.KindHTML {
		err = sf.SetHTML(j.HTML, j.Render.WaitUntil, navTimeout)
	} else {
		err = sf.Navigate(j.URL, j.Render.WaitUntil, navTimeout)
	}
	if err != nil {
		return err
	}

	if j.PostLoadDelayMs > 0 {
		delay := time.Duration(j.PostLoadDelayMs) * time.Millisecond
		if delay > e.opts.MaxPostLoadDelay {
			delay = e.opts.MaxPostLoadDelay
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}

	for i, a := range j.Actions {
		if err := e.runAction(ctx, sf, i, a, art); err != nil {
			return err
		}
		if j.Diag.StepShots {
			if shot, shotErr := sf.Screenshot(false); shotErr != nil {
				e.log.LogDebugf("job %s: step %d snapshot failed: %v", j.ID, i, shotErr)
			} else {
				art.StepShots = append(art.StepShots, shot)
			}
		}
	}

	if j.Output.ContentSnapshot {
		content, cerr := sf.Content()
		if cerr != nil {
			return fmt.Errorf("content snapshot failed: %w", cerr)
		}
		if j.Output.ContentFormat == job.FormatMarkdown {
			art.Content = markdown.FromHTML(content)
			art.ContentExt = "md"
		} else {
			art.Content = content
			art.ContentExt = "html"
		}
	}
	if j.Output.ImageSnapshot {
		img, ierr := sf.Screenshot(j.Output.FullSurface)
		if ierr != nil {
			return fmt.Errorf("image snapshot failed: %w", ierr)
		}
		art.Image = img
	}

	if len(j.Extract) > 0 {
		results, xerr := e.extract(sf, j.Extract)
		if xerr != nil {
			return xerr
		}
		art.Extracted = results
	}
	return nil
}

// configure applies best-effort surface settings. Failures are logged,
// never fatal, and independent of each other. For transient contexts the
// user agent, headers and viewport were already set at creation; pages
// inside a shared session context get headers and viewport here, but
// the user agent is fixed when the context is created and cannot be
// changed per page.
func (e *Executor) configure(sf engine.Surface, j job.Job, shared bool) {
	sf.SetDefaultTimeout(time.Duration(j.Render.TimeoutMs) * time.Millisecond)
	if !shared {
		return
	}
	if j.Render.UserAgent != "" {
		e.log.LogWarnf("job %s: user agent is set at context creation and ignored for session %q", j.ID, j.SessionID)
	}
	if j.Render.ViewportWidth > 0 && j.Render.ViewportHeight > 0 {
		if err := sf.SetViewport(j.Render.ViewportWidth, j.Render.ViewportHeight); err != nil {
			e.log.LogWarnf("job %s: viewport: %v", j.ID, err)
		}
	}
	if len(j.Render.Headers) > 0 {
		if err := sf.SetExtraHeaders(j.Render.Headers); err != nil {
			e.log.LogWarnf("job %s: headers: %v", j.ID, err)
		}
	}
}

// asJobError leaves timeout errors typed and wraps anything else as the
// step's ActionError.
func asJobError(i int, t job.ActionType, err error) error {
	if err == nil {
		return nil
	}
	var te *job.TimeoutError
	if errors.As(err, &te) {
		return err
	}
	return &job.ActionError{Index: i, Type: t, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
