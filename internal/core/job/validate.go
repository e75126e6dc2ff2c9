package job

import (
	"strconv"

	"github.com/google/uuid"
)

const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
	DefaultTimeoutMs      = 30000
	DefaultActionTimeout  = 10000
)

// Normalize turns a parsed raw record into a typed Job, applying defaults
// and rejecting incomplete or unrecognized variants. Pure: no I/O beyond
// generating an id when the caller supplied none.
func Normalize(raw RawJob) (Job, error) {
	j := Job{
		ID:   raw.ID,
		URL:  raw.URL,
		HTML: raw.HTML,
		Render: RenderConfig{
			ViewportWidth:  intOr(raw.ViewportWidth, DefaultViewportWidth),
			ViewportHeight: intOr(raw.ViewportHeight, DefaultViewportHeight),
			WaitUntil:      WaitStructureReady,
			TimeoutMs:      intOr(raw.TimeoutMs, DefaultTimeoutMs),
			UserAgent:      raw.UserAgent,
			Headers:        raw.Headers,
		},
		Output: OutputConfig{
			ContentSnapshot: boolOr(raw.ContentSnapshot, true),
			ImageSnapshot:   boolOr(raw.ImageSnapshot, true),
			FullSurface:     boolOr(raw.FullSurface, false),
			ContentFormat:   FormatHTML,
		},
		PostLoadDelayMs: raw.PostLoadDelayMs,
		Actions:         raw.Actions,
		Extract:         raw.Extract,
		SessionID:       raw.SessionID,
		Diag: DiagConfig{
			Console:   raw.CaptureConsole,
			Network:   raw.CaptureNetwork,
			StepShots: raw.StepShots,
		},
	}

	if j.ID == "" {
		j.ID = uuid.New().String()
	}

	switch Kind(raw.Kind) {
	case KindURL:
		if raw.URL == "" {
			return Job{}, &ValidationError{Field: "url", Reason: "required for kind \"url\""}
		}
		j.Kind = KindURL
	case KindHTML:
		if raw.HTML == "" {
			return Job{}, &ValidationError{Field: "html", Reason: "required for kind \"html\""}
		}
		j.Kind = KindHTML
	case "":
		return Job{}, &ValidationError{Field: "kind", Reason: "missing"}
	default:
		return Job{}, &ValidationError{Field: "kind", Reason: "unrecognized: " + raw.Kind}
	}

	if raw.WaitUntil != "" {
		switch WaitPolicy(raw.WaitUntil) {
		case WaitFirstPaint, WaitStructureReady, WaitNetQuietShort, WaitNetQuietLong:
			j.Render.WaitUntil = WaitPolicy(raw.WaitUntil)
		default:
			return Job{}, &ValidationError{Field: "wait_until", Reason: "unrecognized: " + raw.WaitUntil}
		}
	}

	if raw.ContentFormat != "" {
		switch ContentFormat(raw.ContentFormat) {
		case FormatHTML, FormatMarkdown:
			j.Output.ContentFormat = ContentFormat(raw.ContentFormat)
		default:
			return Job{}, &ValidationError{Field: "content_format", Reason: "unrecognized: " + raw.ContentFormat}
		}
	}

	for i := range j.Actions {
		if err := validateAction(i, &j.Actions[i]); err != nil {
			return Job{}, err
		}
	}
	for i, spec := range j.Extract {
		if err := validateExtraction(i, spec); err != nil {
			return Job{}, err
		}
	}
	return j, nil
}

func validateAction(i int, a *Action) error {
	if a.TimeoutMs <= 0 {
		a.TimeoutMs = DefaultActionTimeout
	}
	switch a.Type {
	case ActionWaitSelector, ActionClick, ActionHover:
		if a.Selector == "" {
			return &ValidationError{Field: actionField(i), Reason: "selector required for " + string(a.Type)}
		}
	case ActionTypeText:
		if a.Selector == "" {
			return &ValidationError{Field: actionField(i), Reason: "selector required for type_text"}
		}
	case ActionKeyPress:
		if a.Selector == "" {
			return &ValidationError{Field: actionField(i), Reason: "selector required for key_press"}
		}
		if a.Key == "" {
			return &ValidationError{Field: actionField(i), Reason: "key required for key_press"}
		}
	case ActionClickPoint:
		// coordinates default to the origin; nothing to check
	case ActionWaitTime:
		if a.DurationMs <= 0 {
			return &ValidationError{Field: actionField(i), Reason: "duration_ms required for wait_time"}
		}
	case ActionWaitExpr:
		if a.Expression == "" {
			return &ValidationError{Field: actionField(i), Reason: "expression required for wait_expr"}
		}
	case ActionWaitPaint, ActionMute:
		// no payload
	case ActionElementShot:
		if a.Selector == "" {
			return &ValidationError{Field: actionField(i), Reason: "selector required for element_shot"}
		}
		if a.Name == "" {
			return &ValidationError{Field: actionField(i), Reason: "name required for element_shot"}
		}
	case "":
		return &ValidationError{Field: actionField(i), Reason: "missing type"}
	default:
		return &ValidationError{Field: actionField(i), Reason: "unrecognized type: " + string(a.Type)}
	}
	return nil
}

func validateExtraction(i int, spec ExtractionSpec) error {
	if spec.Selector == "" {
		return &ValidationError{Field: extractField(i), Reason: "selector required"}
	}
	switch spec.Type {
	case ExtractText, ExtractHTML, ExtractExists:
	case ExtractAttribute:
		if spec.Attr == "" {
			return &ValidationError{Field: extractField(i), Reason: "attr required for attribute extraction"}
		}
	case "":
		return &ValidationError{Field: extractField(i), Reason: "missing type"}
	default:
		return &ValidationError{Field: extractField(i), Reason: "unrecognized type: " + string(spec.Type)}
	}
	return nil
}

func actionField(i int) string  { return "actions[" + strconv.Itoa(i) + "]" }
func extractField(i int) string { return "extract[" + strconv.Itoa(i) + "]" }

func intOr(p *int, def int) int {
	if p == nil || *p <= 0 {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
