package exec

import (
	"context"
	"fmt"
	"time"

	"renderwatch/internal/core/job"
	"renderwatch/internal/platform/engine"
)

// paintProbeJS samples up to a 32x32 pixel region of the first canvas on
// the page. Outcomes:
//
//	painted  - a sampled pixel is non-transparent and not pure white
//	present  - pixel access denied (cross-origin taint) or no 2d
//	           context (accelerated surface); canvas presence is taken
//	           as evidence of painting
//	blank    - region sampled, nothing drawn yet
//	nocanvas - no drawable surface on the page yet
//
// The corner sample is a coarse, tunable approximation, not a
// correctness guarantee.
const paintProbeJS = `() => {
	const c = document.querySelector('canvas');
	if (!c) return 'nocanvas';
	const ctx = c.getContext('2d');
	if (!ctx) return 'present';
	const w = Math.min(32, c.width);
	const h = Math.min(32, c.height);
	if (w === 0 || h === 0) return 'blank';
	let data;
	try {
		data = ctx.getImageData(0, 0, w, h).data;
	} catch (e) {
		return 'present';
	}
	for (let i = 0; i < data.length; i += 4) {
		if (data[i + 3] !== 0 && !(data[i] === 255 && data[i + 1] === 255 && data[i + 2] === 255)) {
			return 'painted';
		}
	}
	return 'blank';
}`

// waitPaint polls the probe at the configured interval until the surface
// shows evidence of painting or the deadline passes.
func (e *Executor) waitPaint(ctx context.Context, sf engine.Surface, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		v, err := sf.Evaluate(paintProbeJS)
		if err == nil {
			switch fmt.Sprint(v) {
			case "painted", "present":
				return nil
			}
		} else {
			e.log.LogDebugf("paint probe: %v", err)
		}
		if time.Now().After(deadline) {
			return &job.TimeoutError{Op: "paint wait"}
		}
		if err := sleepCtx(ctx, e.opts.PollInterval); err != nil {
			return err
		}
	}
}
