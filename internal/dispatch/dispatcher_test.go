package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMessagesOfOnePhoneStayOrderedAndSerial(t *testing.T) {
	var (
		mu      sync.Mutex
		seen    = map[string][]string{}
		running = map[string]int{}
		overlap atomic.Bool
	)

	handler := func(_ context.Context, phone, text string) error {
		mu.Lock()
		running[phone]++
		if running[phone] > 1 {
			overlap.Store(true)
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		running[phone]--
		seen[phone] = append(seen[phone], text)
		mu.Unlock()
		return nil
	}

	d := New(4, 8, handler, nil, discardLogger)
	require.NoError(t, d.Start())

	phones := []string{"5511900000001", "5511900000002", "5511900000003"}
	var wg sync.WaitGroup
	for _, phone := range phones {
		wg.Add(1)
		go func(phone string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, d.Submit(context.Background(), phone, fmt.Sprint(i)))
			}
		}(phone)
	}
	wg.Wait()
	require.NoError(t, d.Stop())

	assert.False(t, overlap.Load())
	for _, phone := range phones {
		require.Len(t, seen[phone], 20)
		for i, text := range seen[phone] {
			assert.Equal(t, fmt.Sprint(i), text)
		}
	}
}

func TestDifferentShardsRunConcurrently(t *testing.T) {
	d := New(2, 1, nil, nil, discardLogger)

	var a, b string
	for i := 0; ; i++ {
		p := fmt.Sprintf("55119%08d", i)
		if a == "" {
			a = p
			continue
		}
		if d.shardOf(p) != d.shardOf(a) {
			b = p
			break
		}
	}

	release := make(chan struct{})
	done := make(chan string, 2)
	d.handler = func(_ context.Context, phone, _ string) error {
		if phone == a {
			<-release
		}
		done <- phone
		return nil
	}
	require.NoError(t, d.Start())

	require.NoError(t, d.Submit(context.Background(), a, "slow"))
	require.NoError(t, d.Submit(context.Background(), b, "fast"))

	select {
	case phone := <-done:
		assert.Equal(t, b, phone)
	case <-time.After(time.Second):
		t.Fatal("second shard was blocked by the first")
	}

	close(release)
	require.NoError(t, d.Stop())
}

func TestHandlerPanicDoesNotKillShard(t *testing.T) {
	var handled atomic.Int32
	d := New(1, 4, func(_ context.Context, _, text string) error {
		if text == "boom" {
			panic("boom")
		}
		handled.Add(1)
		return nil
	}, nil, discardLogger)
	require.NoError(t, d.Start())

	require.NoError(t, d.Submit(context.Background(), "1", "boom"))
	require.NoError(t, d.Submit(context.Background(), "1", "ok"))
	require.NoError(t, d.Stop())

	assert.Equal(t, int32(1), handled.Load())
	assert.ErrorIs(t, d.Submit(context.Background(), "1", "late"), ErrStopped)
}
