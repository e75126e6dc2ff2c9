package claim

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderwatch/internal/core/exec"
	"renderwatch/internal/core/job"
	"renderwatch/internal/core/limiter"
	"renderwatch/internal/core/output"
	"renderwatch/internal/platform/engine"
)

// stubSurface renders every job as the same static page.
type stubSurface struct{}

func (stubSurface) SetViewport(int, int) error                  { return nil }
func (stubSurface) SetExtraHeaders(map[string]string) error     { return nil }
func (stubSurface) SetDefaultTimeout(time.Duration)             {}
func (stubSurface) Navigate(string, job.WaitPolicy, time.Duration) error {
	return nil
}
func (stubSurface) SetHTML(string, job.WaitPolicy, time.Duration) error {
	return nil
}
func (stubSurface) WaitForSelector(string, time.Duration) error { return nil }
func (stubSurface) Click(string, time.Duration) error           { return nil }
func (stubSurface) Hover(string, time.Duration) error           { return nil }
func (stubSurface) Fill(string, string, time.Duration) error    { return nil }
func (stubSurface) Press(string, string, time.Duration) error   { return nil }
func (stubSurface) ClickAt(float64, float64) error              { return nil }
func (stubSurface) Evaluate(string, ...interface{}) (interface{}, error) {
	return nil, nil
}
func (stubSurface) Count(string) (int, error) { return 0, nil }
func (stubSurface) TextContent(string, int, time.Duration) (string, error) {
	return "", nil
}
func (stubSurface) Attribute(string, int, string, time.Duration) (string, error) {
	return "", nil
}
func (stubSurface) InnerHTML(string, int, time.Duration) (string, error) {
	return "", nil
}
func (stubSurface) Content() (string, error) { return "<html><body>ok</body></html>", nil }
func (stubSurface) Screenshot(bool) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}
func (stubSurface) ElementScreenshot(string, time.Duration) ([]byte, error) {
	return nil, nil
}
func (stubSurface) OnConsole(func(job.ConsoleEvent)) {}
func (stubSurface) OnNetwork(func(job.NetworkEvent)) {}

type stubProvider struct{}

func (stubProvider) Acquire(engine.SessionContext, engine.ContextOptions) (engine.Surface, func(), error) {
	return stubSurface{}, func() {}, nil
}

type dirs struct {
	inbox      string
	processing string
	out        string
}

func newTestClaimer(t *testing.T) (*Claimer, *output.Writer, dirs) {
	t.Helper()
	root := t.TempDir()
	d := dirs{
		inbox:      filepath.Join(root, "inbox"),
		processing: filepath.Join(root, "processing"),
		out:        filepath.Join(root, "output"),
	}
	writer := output.NewWriter(d.out)
	executor := exec.NewExecutor(stubProvider{}, nil, exec.Options{PollInterval: 5 * time.Millisecond})
	lim := limiter.New(2)
	c := New(d.inbox, d.processing, 20*time.Millisecond, 30*time.Millisecond, lim, executor, writer)
	return c, writer, d
}

func markerPath(d dirs, id string) string {
	return filepath.Join(d.out, id, output.MarkerFile)
}

func waitForMarker(t *testing.T, d dirs, id string) output.Marker {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(markerPath(d, id))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "no completion marker for %s", id)

	var m output.Marker
	b, err := os.ReadFile(markerPath(d, id))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestClaimAndExecute(t *testing.T) {
	c, _, d := newTestClaimer(t)
	require.NoError(t, c.Run(context.Background()))
	defer stopClaimer(t, c)

	writeInbox(t, d, "job1.json", `{"id":"job-1","kind":"html","html":"<p>hi</p>","image_snapshot":false}`)

	m := waitForMarker(t, d, "job-1")
	assert.Equal(t, "ok", m.Status)

	// Claim and inbox copies are gone once the artifact set is complete.
	assert.Eventually(t, func() bool {
		_, errClaim := os.Stat(filepath.Join(d.processing, "job-1.json"))
		_, errInbox := os.Stat(filepath.Join(d.inbox, "job1.json"))
		return os.IsNotExist(errClaim) && os.IsNotExist(errInbox)
	}, 5*time.Second, 10*time.Millisecond)

	content, err := os.ReadFile(filepath.Join(d.out, "job-1", "page.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "ok")
}

func TestUnparsableFileRejected(t *testing.T) {
	c, _, d := newTestClaimer(t)
	require.NoError(t, c.Run(context.Background()))
	defer stopClaimer(t, c)

	writeInbox(t, d, "broken.json", `{"id": "bad-1", "kind": url`)

	m := waitForMarker(t, d, "bad-1")
	assert.Equal(t, "error", m.Status)
	assert.NotEmpty(t, m.Error)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(d.inbox, "broken.json"))
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond, "rejected file must be deleted")

	entries, err := os.ReadDir(d.processing)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected files are never claimed")
}

func TestInvalidJobRejected(t *testing.T) {
	c, _, d := newTestClaimer(t)
	require.NoError(t, c.Run(context.Background()))
	defer stopClaimer(t, c)

	// Parses fine, but has no kind.
	writeInbox(t, d, "nokind.json", `{"id":"nk-1","url":"https://example.com"}`)

	m := waitForMarker(t, d, "nk-1")
	assert.Equal(t, "error", m.Status)
	assert.Contains(t, m.Error, "kind")
}

func TestAlreadyClaimedIsDropped(t *testing.T) {
	c, _, d := newTestClaimer(t)
	require.NoError(t, os.MkdirAll(d.processing, 0o755))
	// A claim from a previous (possibly crashed) run.
	require.NoError(t, os.WriteFile(filepath.Join(d.processing, "dup-1.json"), []byte(`{}`), 0o644))

	require.NoError(t, c.Run(context.Background()))
	defer stopClaimer(t, c)

	writeInbox(t, d, "dup.json", `{"id":"dup-1","kind":"html","html":"<p/>"}`)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(d.inbox, "dup.json"))
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond, "duplicate delivery must be dropped")

	// Dropped, not executed: no artifacts appear.
	time.Sleep(100 * time.Millisecond)
	_, err := os.Stat(markerPath(d, "dup-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestHiddenFilesIgnored(t *testing.T) {
	c, _, d := newTestClaimer(t)
	require.NoError(t, c.Run(context.Background()))
	defer stopClaimer(t, c)

	writeInbox(t, d, ".partial.json.tmp", `{"id":"hidden-1","kind":"html","html":"<p/>"}`)

	time.Sleep(200 * time.Millisecond)
	_, err := os.Stat(markerPath(d, "hidden-1"))
	assert.True(t, os.IsNotExist(err), "dotfiles must never be processed")
}

func TestStabilityDebounce(t *testing.T) {
	c, _, _ := newTestClaimer(t)
	now := time.Now()

	// First sighting is never stable.
	assert.False(t, c.isStable("f.json", 10, now))

	// Unchanged size and mtime become stable after the window.
	time.Sleep(40 * time.Millisecond)
	assert.True(t, c.isStable("f.json", 10, now))

	// A growing file resets the window.
	assert.False(t, c.isStable("g.json", 10, now))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.isStable("g.json", 20, now.Add(time.Millisecond)))
	assert.False(t, c.isStable("g.json", 20, now.Add(time.Millisecond)))
	time.Sleep(40 * time.Millisecond)
	assert.True(t, c.isStable("g.json", 20, now.Add(time.Millisecond)))
}

func TestBestEffortID(t *testing.T) {
	assert.Equal(t, "abc", bestEffortID([]byte(`{"id": "abc", "kind": `)))
	assert.NotEmpty(t, bestEffortID([]byte(`total garbage`)), "falls back to a generated id")
}

func writeInbox(t *testing.T, d dirs, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(d.inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.inbox, name), []byte(body), 0o644))
}

func stopClaimer(t *testing.T, c *Claimer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}
