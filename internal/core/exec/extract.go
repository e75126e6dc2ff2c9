package exec

import (
	"time"

	"renderwatch/internal/core/job"
	"renderwatch/internal/platform/engine"
)

// Elements are known to exist by the time a value is read, so reads get
// a short fixed deadline rather than the job's navigation timeout.
const extractReadTimeout = 5 * time.Second

// extract runs the specs in order against final rendered state. An
// unmatched single-selector spec yields a null value, not an error; only
// engine failures are fatal.
func (e *Executor) extract(sf engine.Surface, specs []job.ExtractionSpec) ([]job.ExtractionResult, error) {
	results := make([]job.ExtractionResult, 0, len(specs))
	for i, spec := range specs {
		count, err := sf.Count(spec.Selector)
		if err != nil {
			return nil, &job.ExtractionError{Index: i, Selector: spec.Selector, Err: err}
		}

		result := job.ExtractionResult{Type: spec.Type, Name: spec.Name, Selector: spec.Selector}

		switch {
		case spec.Type == job.ExtractExists:
			result.Value = count > 0

		case spec.All:
			values := make([]string, 0, count)
			for nth := 0; nth < count; nth++ {
				v, err := e.readOne(sf, spec, nth)
				if err != nil {
					return nil, &job.ExtractionError{Index: i, Selector: spec.Selector, Err: err}
				}
				values = append(values, v)
			}
			result.Value = values

		case count == 0:
			result.Value = nil

		default:
			v, err := e.readOne(sf, spec, 0)
			if err != nil {
				return nil, &job.ExtractionError{Index: i, Selector: spec.Selector, Err: err}
			}
			result.Value = v
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Executor) readOne(sf engine.Surface, spec job.ExtractionSpec, nth int) (string, error) {
	switch spec.Type {
	case job.ExtractAttribute:
		return sf.Attribute(spec.Selector, nth, spec.Attr, extractReadTimeout)
	case job.ExtractHTML:
		return sf.InnerHTML(spec.Selector, nth, extractReadTimeout)
	default:
		return sf.TextContent(spec.Selector, nth, extractReadTimeout)
	}
}
