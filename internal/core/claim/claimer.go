package claim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"renderwatch/internal/core/exec"
	"renderwatch/internal/core/job"
	"renderwatch/internal/core/limiter"
	"renderwatch/internal/core/output"
	"renderwatch/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// Claimer watches the inbox for newly-stable job files, validates them,
// and takes exclusive ownership by atomically relocating them into the
// processing area before handing them to the limiter. An unparsable or
// invalid file is never claimed; it gets a synthetic error artifact set
// and is deleted.
type Claimer struct {
	log        *logger.Logger
	inbox      string
	processing string
	poll       time.Duration
	stable     time.Duration

	lim    *limiter.Limiter
	exec   *exec.Executor
	writer *output.Writer

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	inflight map[string]struct{}
	pending  map[string]candidate

	stop chan struct{}
	done chan struct{}
}

// candidate tracks one inbox file's debounce state. A file is acted on
// only once its size and mtime have held still for the stability window.
type candidate struct {
	size  int64
	mtime time.Time
	since time.Time
}

func New(inbox, processing string, poll, stable time.Duration, lim *limiter.Limiter, exe *exec.Executor, writer *output.Writer) *Claimer {
	return &Claimer{
		log:        logger.New("ClaimManager"),
		inbox:      inbox,
		processing: processing,
		poll:       poll,
		stable:     stable,
		lim:        lim,
		exec:       exe,
		writer:     writer,
		inflight:   make(map[string]struct{}),
		pending:    make(map[string]candidate),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run prepares the inbox and processing directories and starts watching.
// Setup failures here are fatal at startup.
func (c *Claimer) Run(ctx context.Context) error {
	for _, dir := range []string{c.inbox, c.processing} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox watcher: %w", err)
	}
	if err := watcher.Add(c.inbox); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", c.inbox, err)
	}
	c.watcher = watcher

	go c.loop(ctx)
	c.log.LogInfof("watching inbox %s (poll %v, debounce %v)", c.inbox, c.poll, c.stable)
	return nil
}

// Stop ends claim discovery and drains in-flight jobs within ctx.
func (c *Claimer) Stop(ctx context.Context) error {
	close(c.stop)
	<-c.done
	return c.lim.Drain(ctx)
}

func (c *Claimer) loop(ctx context.Context) {
	defer close(c.done)
	defer c.watcher.Close()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.scan(ctx)
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				c.scan(ctx)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.LogWarnf("inbox watcher: %v", err)
		}
	}
}

// scan walks the inbox once. Discovery order follows directory listing
// order, best-effort.
func (c *Claimer) scan(ctx context.Context) {
	entries, err := os.ReadDir(c.inbox)
	if err != nil {
		c.log.LogWarnf("inbox scan: %v", err)
		return
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		seen[name] = struct{}{}
		info, err := entry.Info()
		if err != nil {
			continue // vanished between list and stat
		}
		if c.isStable(name, info.Size(), info.ModTime()) {
			c.forget(name)
			c.process(ctx, name)
		}
	}

	// Drop debounce state for files no longer present.
	c.mu.Lock()
	for name := range c.pending {
		if _, ok := seen[name]; !ok {
			delete(c.pending, name)
		}
	}
	c.mu.Unlock()
}

func (c *Claimer) isStable(name string, size int64, mtime time.Time) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.pending[name]
	if !ok || prev.size != size || !prev.mtime.Equal(mtime) {
		c.pending[name] = candidate{size: size, mtime: mtime, since: now}
		return false
	}
	return now.Sub(prev.since) >= c.stable
}

func (c *Claimer) forget(name string) {
	c.mu.Lock()
	delete(c.pending, name)
	c.mu.Unlock()
}

// process reads, parses, validates and claims one stable inbox file.
func (c *Claimer) process(ctx context.Context, name string) {
	path := filepath.Join(c.inbox, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.LogWarnf("read %s: %v", path, err)
		}
		return
	}

	var raw job.RawJob
	if err := json.Unmarshal(data, &raw); err != nil {
		perr := &job.ParseError{Reason: err.Error()}
		c.reject(path, bestEffortID(data), perr)
		return
	}

	j, err := job.Normalize(raw)
	if err != nil {
		id := raw.ID
		if id == "" {
			id = uuid.New().String()
		}
		c.reject(path, id, err)
		return
	}

	c.mu.Lock()
	if _, busy := c.inflight[j.ID]; busy {
		c.mu.Unlock()
		c.log.LogWarnf("duplicate delivery of job %s, dropping %s", j.ID, name)
		_ = os.Remove(path)
		return
	}
	c.inflight[j.ID] = struct{}{}
	c.mu.Unlock()

	claimPath := filepath.Join(c.processing, j.ID+".json")
	if _, err := os.Stat(claimPath); err == nil {
		c.release(j.ID)
		c.log.LogWarnf("job %s already claimed, dropping %s", j.ID, name)
		_ = os.Remove(path)
		return
	}

	if err := os.Rename(path, claimPath); err != nil {
		c.release(j.ID)
		if os.IsNotExist(err) {
			// Lost the race to another pass; benign.
			return
		}
		c.log.LogErrorf("claim %s: %v", j.ID, err)
		return
	}

	c.log.LogInfof("claimed job %s (%s)", j.ID, j.Kind)
	c.lim.Enqueue(func() error { return c.runJob(ctx, j, claimPath) })
}

// runJob executes one claimed job, persists its artifacts, and releases
// the claim. The claim file is removed only after the full artifact set
// (marker included) is on disk.
func (c *Claimer) runJob(ctx context.Context, j job.Job, claimPath string) error {
	defer c.release(j.ID)

	started := time.Now()
	if err := c.writer.Start(j, started); err != nil {
		c.log.LogErrorf("job %s: start metadata: %v", j.ID, err)
		_ = c.writer.WriteSyntheticError(j.ID, j.Kind, err.Error())
		_ = os.Remove(claimPath)
		return err
	}

	res, art := c.exec.Execute(ctx, j)

	if err := c.writer.Finish(j, res, art); err != nil {
		c.log.LogErrorf("job %s: artifact write: %v", j.ID, err)
		_ = os.Remove(claimPath)
		return err
	}
	if err := os.Remove(claimPath); err != nil {
		c.log.LogWarnf("job %s: claim removal: %v", j.ID, err)
	}
	return nil
}

// reject handles a file that can never be claimed: synthetic error
// artifacts keyed by a best-effort id, then deletion.
func (c *Claimer) reject(path, id string, cause error) {
	c.log.LogWarnf("rejecting %s: %v", filepath.Base(path), cause)
	if err := c.writer.WriteSyntheticError(id, "", cause.Error()); err != nil {
		c.log.LogErrorf("synthetic artifacts for %s: %v", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.log.LogWarnf("remove %s: %v", path, err)
	}
}

func (c *Claimer) release(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*"([^"]+)"`)

// bestEffortID scrapes an id out of bytes that failed structured
// parsing, falling back to a generated one.
func bestEffortID(data []byte) string {
	if m := idPattern.FindSubmatch(data); m != nil {
		return string(m[1])
	}
	return uuid.New().String()
}
