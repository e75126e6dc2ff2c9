package session

import (
	"sync"

	"renderwatch/internal/logger"
	"renderwatch/internal/platform/engine"

	"golang.org/x/sync/singleflight"
)

// Factory creates the browsing context behind a session id.
type Factory func(id string) (engine.SessionContext, error)

// Registry maps external session identifiers to shared browsing
// contexts. A context is created once per id for the process lifetime;
// concurrent first callers are collapsed into a single creation. There
// is no eviction; CloseAll tears everything down at shutdown.
type Registry struct {
	log    *logger.Logger
	create Factory

	mu       sync.RWMutex
	contexts map[string]engine.SessionContext
	group    singleflight.Group
}

func NewRegistry(create Factory) *Registry {
	return &Registry{
		log:      logger.New("SessionRegistry"),
		create:   create,
		contexts: make(map[string]engine.SessionContext),
	}
}

// GetOrCreate returns the context for id, creating it on first
// reference. A failed creation is not published, so a later job may
// retry it.
func (r *Registry) GetOrCreate(id string) (engine.SessionContext, error) {
	r.mu.RLock()
	if ctx, ok := r.contexts[id]; ok {
		r.mu.RUnlock()
		return ctx, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		r.mu.RLock()
		ctx, ok := r.contexts[id]
		r.mu.RUnlock()
		if ok {
			return ctx, nil
		}

		created, err := r.create(id)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.contexts[id] = created
		r.mu.Unlock()
		r.log.LogInfof("created session context %q", id)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.SessionContext), nil
}

// Len reports the number of live session contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// CloseAll closes every registered context. Called once at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ctx := range r.contexts {
		if err := ctx.Close(); err != nil {
			r.log.LogWarnf("close session context %q: %v", id, err)
		}
		delete(r.contexts, id)
	}
}
