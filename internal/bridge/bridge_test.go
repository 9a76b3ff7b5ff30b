package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tswatcher/internal/model"
)

func TestPublishBeforeNext(t *testing.T) {
	b := New()
	b.Publish(model.Event{ID: "1", Kind: model.EventClientJoined, Alias: "myts"})
	b.Publish(model.Event{ID: "2", Kind: model.EventClientLeft, Alias: "myts"})

	ev, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", ev.ID)

	ev, err = b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", ev.ID)

	assert.Zero(t, b.Len())
}

func TestNextWakesOnPublish(t *testing.T) {
	b := New()

	got := make(chan model.Event, 1)
	go func() {
		ev, err := b.Next(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish(model.Event{ID: "late", Alias: "myts"})

	select {
	case ev := <-got:
		assert.Equal(t, "late", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestNextHonorsCancellation(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Next(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestConcurrentProducersLoseNothing(t *testing.T) {
	b := New()

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Publish(model.Event{ID: fmt.Sprintf("%d-%d", p, i), Alias: "myts"})
			}
		}(p)
	}
	wg.Wait()

	seen := map[string]bool{}
	lastPerProducer := map[string]int{}
	for i := 0; i < producers*perProducer; i++ {
		ev, err := b.Next(context.Background())
		require.NoError(t, err)
		require.False(t, seen[ev.ID], "duplicate event %s", ev.ID)
		seen[ev.ID] = true

		// per-producer order must hold even if global order does not
		var p, seq int
		_, err = fmt.Sscanf(ev.ID, "%d-%d", &p, &seq)
		require.NoError(t, err)
		key := fmt.Sprintf("%d", p)
		if last, ok := lastPerProducer[key]; ok {
			require.Greater(t, seq, last, "out of order for producer %d", p)
		}
		lastPerProducer[key] = seq
	}
	assert.Zero(t, b.Len())
}
