package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderwatch/internal/platform/engine"
)

type fakeContext struct {
	id     string
	closed bool
}

func (f *fakeContext) NewPage() (playwright.Page, error) { return nil, nil }
func (f *fakeContext) Close(options ...playwright.BrowserContextCloseOptions) error {
	f.closed = true
	return nil
}

func TestGetOrCreateReusesContext(t *testing.T) {
	var created int32
	r := NewRegistry(func(id string) (engine.SessionContext, error) {
		atomic.AddInt32(&created, 1)
		return &fakeContext{id: id}, nil
	})

	a, err := r.GetOrCreate("s1")
	require.NoError(t, err)
	b, err := r.GetOrCreate("s1")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), atomic.LoadInt32(&created))
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreateDistinctIDs(t *testing.T) {
	r := NewRegistry(func(id string) (engine.SessionContext, error) {
		return &fakeContext{id: id}, nil
	})

	a, err := r.GetOrCreate("s1")
	require.NoError(t, err)
	b, err := r.GetOrCreate("s2")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestGetOrCreateConcurrentSingleCreation(t *testing.T) {
	var created int32
	r := NewRegistry(func(id string) (engine.SessionContext, error) {
		atomic.AddInt32(&created, 1)
		return &fakeContext{id: id}, nil
	})

	const callers = 32
	results := make([]engine.SessionContext, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, err := r.GetOrCreate("shared")
			require.NoError(t, err)
			results[i] = ctx
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&created))
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestFailedCreationIsRetried(t *testing.T) {
	var calls int32
	r := NewRegistry(func(id string) (engine.SessionContext, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("browser busy")
		}
		return &fakeContext{id: id}, nil
	})

	_, err := r.GetOrCreate("s1")
	require.Error(t, err)
	assert.Equal(t, 0, r.Len(), "failed creation must not be published")

	ctx, err := r.GetOrCreate("s1")
	require.NoError(t, err)
	assert.NotNil(t, ctx)
	assert.Equal(t, 1, r.Len())
}

func TestCloseAll(t *testing.T) {
	made := make(map[string]*fakeContext)
	r := NewRegistry(func(id string) (engine.SessionContext, error) {
		f := &fakeContext{id: id}
		made[id] = f
		return f, nil
	})

	_, err := r.GetOrCreate("a")
	require.NoError(t, err)
	_, err = r.GetOrCreate("b")
	require.NoError(t, err)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	for id, f := range made {
		assert.True(t, f.closed, "context %q should be closed", id)
	}
}
