package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"renderwatch/internal/core/job"
	"renderwatch/internal/logger"

	"github.com/google/uuid"
)

const (
	MetadataFile = "metadata.json"
	MarkerFile   = "done.json"
	ImageFile    = "page.png"
	ExtractFile  = "extracted.json"
	ConsoleFile  = "console.json"
	NetworkFile  = "network.json"
	StepsDir     = "steps"
)

// ArtifactSet is everything a finished job hands to the writer besides
// its result record.
type ArtifactSet struct {
	Content      string
	ContentExt   string // "html" or "md"
	Image        []byte
	Extracted    []job.ExtractionResult
	Console      []job.ConsoleEvent
	Network      []job.NetworkEvent
	StepShots    [][]byte
	ElementShots map[string][]byte
}

// Metadata is the per-job record visible to external observers. The
// start form omits end-time fields entirely, which is how an observer
// distinguishes "in flight" from "done".
type Metadata struct {
	ID         string           `json:"id"`
	Kind       job.Kind         `json:"kind"`
	StartedAt  string           `json:"started_at"`
	EndedAt    string           `json:"ended_at,omitempty"`
	DurationMs *int64           `json:"duration_ms,omitempty"`
	Error      bool             `json:"error"`
	ErrorMsg   string           `json:"error_message,omitempty"`
	URL        string           `json:"url,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	Render     job.RenderConfig `json:"render"`
	Output     job.OutputConfig `json:"output"`
}

// Marker is the completion marker, always the final artifact write. Its
// presence guarantees every other present artifact is fully written.
type Marker struct {
	Status string `json:"status"` // ok | error
	Error  string `json:"error,omitempty"`
}

// Writer persists job artifacts under one directory per job id. Every
// individual write goes through a same-directory temp file and a single
// rename, so readers never observe a partial artifact.
type Writer struct {
	root string
	log  *logger.Logger
}

func NewWriter(root string) *Writer {
	return &Writer{root: root, log: logger.New("OutputWriter")}
}

func (w *Writer) JobDir(id string) string { return filepath.Join(w.root, id) }

// Start creates the job's output directory and writes the in-flight
// metadata record, before execution begins.
func (w *Writer) Start(j job.Job, startedAt time.Time) error {
	dir := w.JobDir(j.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	meta := Metadata{
		ID:        j.ID,
		Kind:      j.Kind,
		StartedAt: startedAt.UTC().Format(time.RFC3339Nano),
		URL:       j.URL,
		SessionID: j.SessionID,
		Render:    j.Render,
		Output:    j.Output,
	}
	return w.writeJSON(dir, MetadataFile, meta)
}

// Finish rewrites the metadata with timing and error fields, writes the
// produced artifacts, and ends with the completion marker. Diagnostic
// logs, step snapshots and element snapshots are best-effort; their
// failure never affects job status. The marker is attempted on every
// exit path, last; a missing marker must only ever mean in-flight or a
// dead process, so a failed artifact write becomes the marker's error
// rather than suppressing it.
func (w *Writer) Finish(j job.Job, res job.JobResult, art ArtifactSet) error {
	dir := w.JobDir(j.ID)

	werr := w.writeRequired(dir, j, res, art)
	if werr != nil {
		w.log.LogErrorf("job %s: artifact write: %v", j.ID, werr)
	}

	// Best-effort from here until the marker.
	if art.Console != nil {
		if err := w.writeJSON(dir, ConsoleFile, art.Console); err != nil {
			w.log.LogWarnf("job %s: console log write failed: %v", j.ID, err)
		}
	}
	if art.Network != nil {
		if err := w.writeJSON(dir, NetworkFile, art.Network); err != nil {
			w.log.LogWarnf("job %s: network log write failed: %v", j.ID, err)
		}
	}
	if len(art.StepShots) > 0 {
		stepsDir := filepath.Join(dir, StepsDir)
		if err := os.MkdirAll(stepsDir, 0o755); err != nil {
			w.log.LogWarnf("job %s: steps dir: %v", j.ID, err)
		} else {
			for i, shot := range art.StepShots {
				name := fmt.Sprintf("step_%03d.png", i+1)
				if err := w.writeAtomic(stepsDir, name, shot); err != nil {
					w.log.LogWarnf("job %s: step snapshot %s failed: %v", j.ID, name, err)
				}
			}
		}
	}
	for name, shot := range art.ElementShots {
		if err := w.writeAtomic(dir, sanitizeName(name)+".png", shot); err != nil {
			w.log.LogWarnf("job %s: element snapshot %s failed: %v", j.ID, name, err)
		}
	}

	ok, msg := res.OK, res.Err
	if werr != nil {
		ok, msg = false, werr.Error()
	}
	if merr := w.writeMarker(dir, ok, msg); merr != nil && werr == nil {
		return merr
	}
	return werr
}

// writeRequired writes the artifacts whose failure fails the job: the
// final metadata, the content and image snapshots, and the extraction
// results.
func (w *Writer) writeRequired(dir string, j job.Job, res job.JobResult, art ArtifactSet) error {
	meta := Metadata{
		ID:        j.ID,
		Kind:      j.Kind,
		StartedAt: time.UnixMilli(res.StartedAt).UTC().Format(time.RFC3339Nano),
		EndedAt:   time.UnixMilli(res.EndedAt).UTC().Format(time.RFC3339Nano),
		Error:     !res.OK,
		ErrorMsg:  res.Err,
		URL:       j.URL,
		SessionID: j.SessionID,
		Render:    j.Render,
		Output:    j.Output,
	}
	meta.DurationMs = &res.DurationMs
	if err := w.writeJSON(dir, MetadataFile, meta); err != nil {
		return err
	}

	if art.Content != "" {
		name := "page." + art.ContentExt
		if art.ContentExt == "" {
			name = "page.html"
		}
		if err := w.writeAtomic(dir, name, []byte(art.Content)); err != nil {
			return err
		}
	}
	if len(art.Image) > 0 {
		if err := w.writeAtomic(dir, ImageFile, art.Image); err != nil {
			return err
		}
	}
	if art.Extracted != nil {
		if err := w.writeJSON(dir, ExtractFile, art.Extracted); err != nil {
			return err
		}
	}
	return nil
}

// WriteSyntheticError produces a complete artifact set for a job that
// never executed (parse or validation failure): metadata with the error
// and the marker. id may be best-effort or generated.
func (w *Writer) WriteSyntheticError(id string, kind job.Kind, errMsg string) error {
	if id == "" {
		id = uuid.New().String()
	}
	dir := w.JobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	meta := Metadata{
		ID:        id,
		Kind:      kind,
		StartedAt: now,
		EndedAt:   now,
		Error:     true,
		ErrorMsg:  errMsg,
	}
	zero := int64(0)
	meta.DurationMs = &zero
	if err := w.writeJSON(dir, MetadataFile, meta); err != nil {
		return err
	}
	return w.writeMarker(dir, false, errMsg)
}

func (w *Writer) writeMarker(dir string, ok bool, errMsg string) error {
	m := Marker{Status: "ok"}
	if !ok {
		m = Marker{Status: "error", Error: errMsg}
	}
	return w.writeJSON(dir, MarkerFile, m)
}

func (w *Writer) writeJSON(dir, name string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return w.writeAtomic(dir, name, b)
}

// writeAtomic writes data to a temp file in the same directory and
// renames it into place: one rename, never an observable partial read.
func (w *Writer) writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "element"
	}
	return string(out)
}
