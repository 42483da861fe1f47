package evaluation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsEveryAcceptedJob(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	d := NewDispatcher(3, 16, func(ctx context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, id)
		if id == "bad" {
			return errors.New("judge down")
		}
		return nil
	})
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "bad", "c"} {
		assert.True(t, d.Submit(id))
	}
	require.NoError(t, d.Close())

	sort.Strings(seen)
	assert.Equal(t, []string{"a", "b", "bad", "c"}, seen)
	assert.False(t, d.Submit("late"))
	require.NoError(t, d.Close())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, 1, func(ctx context.Context, id string) error { return nil })

	assert.True(t, d.Submit("first"))
	assert.False(t, d.Submit("second"))
	require.NoError(t, d.Close())
}

func TestDispatcherRecoversFromPanic(t *testing.T) {
	var (
		mu   sync.Mutex
		done []string
	)
	d := NewDispatcher(1, 4, func(ctx context.Context, id string) error {
		if id == "boom" {
			panic("unexpected")
		}
		mu.Lock()
		done = append(done, id)
		mu.Unlock()
		return nil
	})
	d.Start(context.Background())
	d.Submit("boom")
	d.Submit("after")
	require.NoError(t, d.Close())
	assert.Equal(t, []string{"after"}, done)
}
