package exec

import (
	"context"
	"fmt"
	"time"

	"renderwatch/internal/core/job"
	"renderwatch/internal/core/output"
	"renderwatch/internal/platform/engine"
)

// runAction dispatches one step of the scripted sequence. The action set
// is closed; the default branch only fires on a variant the validator
// does not know either.
func (e *Executor) runAction(ctx context.Context, sf engine.Surface, i int, a job.Action, art *output.ArtifactSet) error {
	timeout := time.Duration(a.TimeoutMs) * time.Millisecond

	switch a.Type {
	case job.ActionWaitSelector:
		return asJobError(i, a.Type, sf.WaitForSelector(a.Selector, timeout))

	case job.ActionClick:
		return asJobError(i, a.Type, sf.Click(a.Selector, timeout))

	case job.ActionHover:
		return asJobError(i, a.Type, sf.Hover(a.Selector, timeout))

	case job.ActionTypeText:
		return asJobError(i, a.Type, sf.Fill(a.Selector, a.Text, timeout))

	case job.ActionKeyPress:
		return asJobError(i, a.Type, sf.Press(a.Selector, a.Key, timeout))

	case job.ActionClickPoint:
		return asJobError(i, a.Type, sf.ClickAt(a.X, a.Y))

	case job.ActionWaitTime:
		return sleepCtx(ctx, time.Duration(a.DurationMs)*time.Millisecond)

	case job.ActionWaitExpr:
		return e.waitExpr(ctx, sf, a.Expression, timeout)

	case job.ActionWaitPaint:
		return e.waitPaint(ctx, sf, timeout)

	case job.ActionMute:
		e.muteByHeuristic(sf)
		return nil

	case job.ActionElementShot:
		buf, err := sf.ElementScreenshot(a.Selector, timeout)
		if err != nil {
			return asJobError(i, a.Type, err)
		}
		if art.ElementShots == nil {
			art.ElementShots = make(map[string][]byte)
		}
		art.ElementShots[a.Name] = buf
		return nil

	default:
		return &job.ActionError{Index: i, Type: a.Type, Err: fmt.Errorf("unhandled action type")}
	}
}

// waitExpr polls the expression against current content until it
// evaluates truthy or the deadline passes.
func (e *Executor) waitExpr(ctx context.Context, sf engine.Surface, expr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		v, err := sf.Evaluate(expr)
		if err == nil && isTruthy(v) {
			return nil
		}
		if err != nil {
			e.log.LogDebugf("wait_expr evaluation: %v", err)
		}
		if time.Now().After(deadline) {
			return &job.TimeoutError{Op: "predicate wait"}
		}
		if err := sleepCtx(ctx, e.opts.PollInterval); err != nil {
			return err
		}
	}
}

func isTruthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
