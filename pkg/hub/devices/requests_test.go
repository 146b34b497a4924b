package devices

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := generateAccessToken()
		require.NoError(t, err)
		require.Len(t, token, accessTokenLength)
		for _, c := range token {
			assert.Contains(t, accessTokenCharset, string(c))
		}
		_, dup := seen[token]
		assert.False(t, dup, "token collision")
		seen[token] = struct{}{}
	}
}

func TestNewRequest(t *testing.T) {
	a := newRequest("sess-1", "192.168.1.20:40000", "Phone")
	b := newRequest("sess-2", "192.168.1.21:40001", "Tablet")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "sess-1", a.SessionID)
	assert.Equal(t, "192.168.1.20:40000", a.Addr)
	assert.Equal(t, "Phone", a.Name)
	assert.WithinDuration(t, time.Now(), a.CreatedAt, time.Second)
}

func TestRefresherCoalesces(t *testing.T) {
	r := newRefresher()

	var mu sync.Mutex
	var runs []string
	started := make(chan struct{})
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.run(ctx, func(folderID string) {
			mu.Lock()
			runs = append(runs, folderID)
			mu.Unlock()
			if folderID == "blocker" {
				close(started)
				<-release
			}
		})
		close(done)
	}()

	// Hold the worker inside a task, then pile up duplicates behind it.
	r.enqueue("blocker")
	<-started
	r.enqueue("folder-a")
	r.enqueue("folder-a")
	r.enqueue("folder-a")
	r.enqueue("folder-b")
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"blocker", "folder-a", "folder-b"}, runs)
	mu.Unlock()

	cancel()
	<-done
}

func TestRefresherRequeuesAfterRun(t *testing.T) {
	r := newRefresher()

	var mu sync.Mutex
	count := 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.run(ctx, func(string) {
			mu.Lock()
			count++
			mu.Unlock()
		})
		close(done)
	}()

	r.enqueue("folder-a")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The pending mark was cleared, so the same folder can be queued again.
	r.enqueue("folder-a")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRefresherEnqueueAfterCloseIsNoop(t *testing.T) {
	r := newRefresher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.run(ctx, func(string) { t.Error("no task should run") })
		close(done)
	}()
	cancel()
	<-done

	r.enqueue("folder-a")
	assert.Empty(t, r.queue)
}
